package types

// Item is a single record pulled from a Supplier.
type Item struct {
	// Position is the position of the record within its series.
	Position Position

	// Data is the supplier-specific payload (e.g., jetstream.Msg, *sarama.ConsumerMessage).
	Data any
}
