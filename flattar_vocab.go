package flattar

// Types in this file are all serializable.

import (
	"time"

	"github.com/polydawn/refmt/obj/atlas"
	. "github.com/warpfork/go-errcat"
)

/*
	Monitoring configuration, and the message types sent to it.
*/
type (
	/*
		Slot for the channel the caller wishes events to be sent to.

		A nil channel disables all reporting.
		Sends are blocking: the caller must keep draining the channel
		for as long as archiving is in progress.
		The channel is never closed by the Archiver; it belongs to the caller.
	*/
	Monitor struct {
		Chan chan<- Event
	}

	/*
		A "union" type of all the kinds of event that may be generated.

		The "Result" message is never sent to Monitor.Chan --
		its values are converted into function returns --
		but the CLI emits it in serial form when it's done.
	*/
	Event struct {
		Log    *Event_Log    `refmt:"log,omitempty"`
		Result *Event_Result `refmt:"result,omitempty"`
	}

	/*
		A trace line, describing one decision the Archiver made.

		'Msg' is freetext, and names the local and archive paths involved.
	*/
	Event_Log struct {
		Time  time.Time
		Level LogLevel
		Msg   string
	}

	Event_Result struct {
		Digest string `refmt:"digest,omitempty"`
		Error  *SerialError `refmt:"error,omitempty"`
	}

	/*
		Serial form of an errcat error: the category string and the message.
	*/
	SerialError struct {
		Category ErrorCategory `refmt:"category"`
		Msg      string        `refmt:"msg"`
	}
)

type LogLevel int8

const (
	LogError = LogLevel(4)
	LogWarn  = LogLevel(3)
	LogInfo  = LogLevel(2)
	LogDebug = LogLevel(1)
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	default:
		return "???"
	}
}

func (r *Event_Result) SetError(err error) {
	if err == nil {
		r.Error = nil
		return
	}
	r.Error = &SerialError{Msg: err.Error()}
	if cat, ok := Category(err).(ErrorCategory); ok {
		r.Error.Category = cat
	}
}

var Atlas = atlas.MustBuild(
	atlas.BuildEntry(Event{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Log{}).StructMap().
		AddField("Time", atlas.StructMapEntry{SerialName: "time"}).
		AddField("Level", atlas.StructMapEntry{SerialName: "level"}).
		AddField("Msg", atlas.StructMapEntry{SerialName: "msg"}).
		Complete(),
	atlas.BuildEntry(Event_Result{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(SerialError{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(time.Time{}).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(t time.Time) (string, error) {
				return t.UTC().Format(time.RFC3339Nano), nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(s string) (time.Time, error) {
				return time.Parse(time.RFC3339Nano, s)
			})).
		Complete(),
)
