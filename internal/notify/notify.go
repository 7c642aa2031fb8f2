package notify

// Channel selects which notification stream a message goes to.
type Channel int

const (
	// ChannelMain carries trade confirmations and the end-of-run summary.
	ChannelMain Channel = iota
	// ChannelError carries per-symbol failures and execution rejections.
	ChannelError
)

// Notifier delivers best-effort, fire-and-forget messages. Implementations
// must never let a delivery failure propagate into the trading pass.
type Notifier interface {
	Send(channel Channel, text string)
}

// Nop is a Notifier that discards every message. Used in tests and when
// Telegram is disabled in the config.
type Nop struct{}

func (Nop) Send(Channel, string) {}
