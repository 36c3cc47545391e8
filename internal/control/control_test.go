package control

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jmylchreest/framewire/internal/config"
)

func newTestReceiver(t *testing.T) (*Receiver, *httptest.Server) {
	t.Helper()
	r := NewReceiver(config.ControlConfig{Host: "127.0.0.1", Port: 0}, nil)
	srv := httptest.NewServer(r.Routes())
	t.Cleanup(srv.Close)
	return r, srv
}

func postCommands(t *testing.T, srv *httptest.Server, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/commands",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		t.Fatalf("POST /commands failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestReceiver_QueuesCommands(t *testing.T) {
	r, srv := newTestReceiver(t)

	resp := postCommands(t, srv, url.Values{CmdStartRecording: {"/tmp/out.ts"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := r.Pending(); got != 1 {
		t.Fatalf("Pending = %d, want 1", got)
	}

	cmds := r.Drain()
	if len(cmds) != 1 {
		t.Fatalf("Drain returned %d commands, want 1", len(cmds))
	}
	if cmds[0].Name != CmdStartRecording || cmds[0].Payload != "/tmp/out.ts" {
		t.Errorf("unexpected command: %+v", cmds[0])
	}

	// Drain empties the queue.
	if got := r.Drain(); got != nil {
		t.Errorf("second Drain returned %v, want nil", got)
	}
}

func TestReceiver_SignalsReadiness(t *testing.T) {
	r, srv := newTestReceiver(t)

	select {
	case <-r.Ready():
		t.Fatal("readiness fired with empty queue")
	default:
	}

	postCommands(t, srv, url.Values{CmdStop: {"yes"}})

	select {
	case <-r.Ready():
	default:
		t.Fatal("readiness did not fire after command arrival")
	}
}

func TestReceiver_MultipleCommandsInOneRequest(t *testing.T) {
	r, srv := newTestReceiver(t)

	postCommands(t, srv, url.Values{
		CmdStopRecording: {"yes"},
		CmdStop:          {"yes"},
	})

	cmds := r.Drain()
	if len(cmds) != 2 {
		t.Fatalf("Drain returned %d commands, want 2", len(cmds))
	}
	seen := map[string]bool{}
	for _, c := range cmds {
		seen[c.Name] = true
	}
	if !seen[CmdStopRecording] || !seen[CmdStop] {
		t.Errorf("missing commands: %+v", cmds)
	}
}

func TestReceiver_StopOrderedFirst(t *testing.T) {
	r, srv := newTestReceiver(t)

	postCommands(t, srv, url.Values{
		CmdStartRecording: {"/tmp/out.ts"},
		CmdStopRecording:  {"yes"},
		CmdStop:           {"yes"},
	})

	cmds := r.Drain()
	if len(cmds) != 3 {
		t.Fatalf("Drain returned %d commands, want 3", len(cmds))
	}
	want := []string{CmdStop, CmdStopRecording, CmdStartRecording}
	for i, name := range want {
		if cmds[i].Name != name {
			t.Errorf("command %d = %q, want %q", i, cmds[i].Name, name)
		}
	}
}

func TestReceiver_RejectsEmptyForm(t *testing.T) {
	_, srv := newTestReceiver(t)

	resp := postCommands(t, srv, url.Values{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
