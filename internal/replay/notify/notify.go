// Package notify defines the notification sink the dispatcher forwards
// replayed events to. It is an external collaborator referenced only by
// interface; this module owns no concrete sink.
package notify

import "github.com/alxayo/go-replay/internal/replay/record"

// Sink receives replayed events in record order. A non-nil error from any
// method aborts the dispatch call that produced it and propagates to the
// player's caller.
type Sink interface {
	OnNodeAdded(name string, typ record.NodeType, codec record.CodecID, frames uint32) error
	OnNodeRemoved(name string) error
	OnNodeStateReady(name string) error
	OnNodeIntPropChanged(node, prop string, value uint64) error
	OnNodeRealPropChanged(node, prop string, value float64) error
	OnNodeStringPropChanged(node, prop, value string) error
	OnNodeGeneralPropChanged(node, prop string, data []byte) error
	OnNodeNewData(node string, timestamp uint64, frame uint32, data []byte) error
	OnEndOfFile() error
}

// NopSink implements Sink by doing nothing; embed it to satisfy the
// interface while overriding only the methods a test or tool cares about.
type NopSink struct{}

func (NopSink) OnNodeAdded(string, record.NodeType, record.CodecID, uint32) error { return nil }
func (NopSink) OnNodeRemoved(string) error                                        { return nil }
func (NopSink) OnNodeStateReady(string) error                                     { return nil }
func (NopSink) OnNodeIntPropChanged(string, string, uint64) error                 { return nil }
func (NopSink) OnNodeRealPropChanged(string, string, float64) error               { return nil }
func (NopSink) OnNodeStringPropChanged(string, string, string) error              { return nil }
func (NopSink) OnNodeGeneralPropChanged(string, string, []byte) error             { return nil }
func (NopSink) OnNodeNewData(string, uint64, uint32, []byte) error                { return nil }
func (NopSink) OnEndOfFile() error                                                { return nil }
