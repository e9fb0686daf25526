package mailclient

import (
	"context"
	"fmt"
	"math/rand"

	"mailnexy/internal/apperr"
)

// StaticContentGenerator is a placeholder ContentGenerator for development
// and tests: the real generator is an external collaborator per spec.md §1
// (out of scope). It picks a subject/body pair at random from a fixed pool
// of innocuous pairs using the injected *rand.Rand, so a seeded source gives
// deterministic, non-empty content without a real generation service.
type StaticContentGenerator struct {
	rnd   *rand.Rand
	pairs []contentPair
}

type contentPair struct {
	subject string
	body    string
}

func NewStaticContentGenerator(rnd *rand.Rand) *StaticContentGenerator {
	return &StaticContentGenerator{
		rnd: rnd,
		pairs: []contentPair{
			{"Quick check-in", "<p>Hope your week is going well. Just following up.</p>"},
			{"Following up", "<p>Wanted to circle back on this when you have a moment.</p>"},
			{"Notes from earlier", "<p>Attaching a quick summary for your records.</p>"},
			{"A question for you", "<p>Curious to hear your thoughts on this when you're free.</p>"},
		},
	}
}

func (g *StaticContentGenerator) Generate(ctx context.Context, kind string) (string, string, error) {
	if len(g.pairs) == 0 {
		return "", "", apperr.New("contentgen.generate", apperr.KindContentGeneratorEmpty, fmt.Errorf("no content pairs configured"))
	}
	p := g.pairs[g.rnd.Intn(len(g.pairs))]
	return p.subject, p.body, nil
}
