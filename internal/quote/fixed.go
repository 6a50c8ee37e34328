package quote

import (
	"context"
	"math/rand"

	"github.com/vyrodovalexey/qotd/internal/config"
)

// EightBall holds the Magic 8-Ball answers served by the fixed source.
var EightBall = []string{
	"It is certain.",
	"It is decidedly so.",
	"Without a doubt.",
	"Yes - definitely.",
	"You may rely on it.",
	"As I see it, yes.",
	"Most likely.",
	"Outlook good.",
	"Yes.",
	"Signs point to yes.",
	"Reply hazy, try again.",
	"Ask again later.",
	"Better not tell you now.",
	"Cannot predict now.",
	"Concentrate and ask again.",
	"Don't count on it.",
	"My reply is no.",
	"My sources say no.",
	"Outlook not so good.",
	"Very doubtful.",
}

// Fixed serves a uniformly random entry of a built-in list.
type Fixed struct {
	quotes []string
}

// NewFixed creates the Magic 8-Ball source.
func NewFixed() *Fixed {
	return &Fixed{quotes: EightBall}
}

// Next returns a random answer.
func (f *Fixed) Next(context.Context) string {
	return f.quotes[rand.Intn(len(f.quotes))] //nolint:gosec // not security sensitive
}

// Mode returns config.ModeFixed.
func (f *Fixed) Mode() config.Mode {
	return config.ModeFixed
}

// Close is a no-op.
func (f *Fixed) Close() error {
	return nil
}
