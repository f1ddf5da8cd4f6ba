package packager

// Package is an ordered batch of envelopes whose cumulative encoded size
// stays within the configured limit.
type Package struct {
	Envelopes []*Envelope
	Size      int
}

// Pack bins envelopes greedily in arrival order: an envelope joins the open
// package when it fits, otherwise the package is closed and a new one
// started. Envelopes that individually exceed the limit (or fail to encode)
// come back in rejected instead of being dropped silently; everything else
// is reproduced exactly, in order, across the returned packages. Pack has no
// side effects beyond the envelopes' encode cache.
func Pack(envs []*Envelope, limit int) (packages []Package, rejected []*Envelope) {
	var cur Package
	for _, env := range envs {
		b, err := env.Encode()
		if err != nil || len(b) > limit {
			rejected = append(rejected, env)
			continue
		}
		if cur.Size+len(b) > limit && len(cur.Envelopes) > 0 {
			packages = append(packages, cur)
			cur = Package{}
		}
		cur.Envelopes = append(cur.Envelopes, env)
		cur.Size += len(b)
	}
	if len(cur.Envelopes) > 0 {
		packages = append(packages, cur)
	}
	return packages, rejected
}
