package meter

// Source is a live, already-playing audio signal supplied by the host.
//
// Sources are used as map keys to remember which signals are connected, so
// implementations must be comparable; pointer types are the natural choice.
type Source interface {
	// Connect routes the signal into the analysis graph. It returns an error
	// wrapping ErrAlreadyConnected if the signal is already routed, in which case
	// the existing routing stays usable. Connect must never pause, mute, or
	// redirect the signal for its original consumers.
	Connect() error

	// Analyser returns a non-destructive observation point for one channel.
	Analyser(channel int) (Analyser, error)
}

// Analyser exposes the frequency-domain view of one channel.
type Analyser interface {
	// Magnitudes copies the most recent magnitude buffer into dst[:0] and returns
	// it. It never blocks: without new signal data it returns the previous buffer.
	Magnitudes(dst []float64) ([]float64, error)

	// Close disconnects the observation point.
	Close() error
}
