package engine

// EventSink receives protocol events as they are decoded from the control
// channel. This is the "typed event stream" the design notes call for in
// place of the reference implementation's GUI signal/slot coupling (§9): the
// engine publishes, and whatever UI or test harness is embedding it
// subscribes by implementing this interface. Every method must return
// quickly — the engine invokes these synchronously from its single control
// read loop, so a slow handler stalls protocol processing for this session.
//
// NopEventSink embeds cleanly into a partial implementation; callers only
// override the methods they care about.
type EventSink interface {
	OnUserList(roster []RosterEntry)
	OnJoin(name, color string)
	OnLeave(name, addr string)
	OnChat(from, message string)
	OnPrivateChat(from, message string)
	OnPrivateChatSent(to, message string)
	OnGesture(from, gestureType string)
	OnCursorMove(from string, x, y float64, color string)
	OnWhiteboardAction(msg ControlMsg)
	OnWhiteboardSync(snapshot WhiteboardSnapshot)
	OnPresentStart(from string)
	OnPresentStop(from string)
	OnFileOffer(from, filename string, size int64)
	OnAuthFailed(message string)
	OnError(message string)
	OnDisconnected(err error)
}

// NopEventSink is a no-op EventSink. Embed it to implement only the events a
// caller cares about.
type NopEventSink struct{}

func (NopEventSink) OnUserList(roster []RosterEntry)                           {}
func (NopEventSink) OnJoin(name, color string)                                 {}
func (NopEventSink) OnLeave(name, addr string)                                 {}
func (NopEventSink) OnChat(from, message string)                               {}
func (NopEventSink) OnPrivateChat(from, message string)                        {}
func (NopEventSink) OnPrivateChatSent(to, message string)                      {}
func (NopEventSink) OnGesture(from, gestureType string)                        {}
func (NopEventSink) OnCursorMove(from string, x, y float64, color string)      {}
func (NopEventSink) OnWhiteboardAction(msg ControlMsg)                         {}
func (NopEventSink) OnWhiteboardSync(snapshot WhiteboardSnapshot)              {}
func (NopEventSink) OnPresentStart(from string)                                {}
func (NopEventSink) OnPresentStop(from string)                                 {}
func (NopEventSink) OnFileOffer(from, filename string, size int64)             {}
func (NopEventSink) OnAuthFailed(message string)                               {}
func (NopEventSink) OnError(message string)                                    {}
func (NopEventSink) OnDisconnected(err error)                                  {}
