package directory

import (
	"tablectl/pkg/identity"
	"tablectl/pkg/watch"
)

// EntryCopier republishes a reactor's directory observable into a Sink under
// the table's key: the current value immediately, then every update.
//
// Close only detaches the subscription. It deliberately does not delete the
// key: the owning handle removes it at its own point in the teardown
// sequence, after the reactor is gone.
type EntryCopier struct {
	cancel func()
}

func NewEntryCopier(sink Sink, ns identity.NamespaceID, src *watch.Variable[Entry]) *EntryCopier {
	cancel := src.Subscribe(func(entry Entry) {
		sink.Upsert(ns, entry)
	})
	sink.Upsert(ns, src.Get())
	return &EntryCopier{cancel: cancel}
}

func (c *EntryCopier) Close() {
	c.cancel()
}
