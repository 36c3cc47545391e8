package pipeline

// Tee fans one edge out to several consumers. Push and Observe are
// forwarded in registration order; the frame itself is shared, which
// is safe because pushed frames are sealed.
func Tee[F Format, G Geometry](consumers ...Consumer[F, G]) Consumer[F, G] {
	return tee[F, G](consumers)
}

type tee[F Format, G Geometry] []Consumer[F, G]

func (t tee[F, G]) Push(fr *Frame[F, G]) {
	for _, c := range t {
		c.Push(fr)
	}
}

func (t tee[F, G]) Observe(st Status) {
	for _, c := range t {
		c.Observe(st)
	}
}
