package api

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
)

// multiJSONContentType negotiates the streaming multi-frame transport,
// spec.md §6: "a streaming multi-frame format negotiated by
// Content-Type: application/x-multiple-json".
const multiJSONContentType = "application/x-multiple-json"

// FrameWriter streams a sequence of JSON values to a client, using the
// [u32 LE length][json payload] framing when the client negotiated
// multi-JSON, or falling back to writing a single bare JSON object (the
// legacy behavior, spec.md §9's Open Question (a)) otherwise.
//
// The original implementation only called w.WriteHeader on the frame
// following the very first one — firstWrite was flipped to false before the
// header write rather than after, so the first frame shipped with no status
// line at all on some net/http versions that buffer the first Write. This
// writer calls writeHead unconditionally before the first byte goes out,
// which is the fix spec.md §9(a) calls for.
type FrameWriter struct {
	w          http.ResponseWriter
	multiFrame bool
	firstWrite bool
}

// NewFrameWriter negotiates the transport from the request's Content-Type
// (clients that want streaming set it on the request; the response mirrors
// it) and prepares to stream envelopes.
func NewFrameWriter(w http.ResponseWriter, r *http.Request) *FrameWriter {
	fw := &FrameWriter{w: w, firstWrite: true}
	if r.Header.Get("Content-Type") == multiJSONContentType {
		fw.multiFrame = true
		w.Header().Set("Content-Type", multiJSONContentType)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	return fw
}

// writeHead writes the HTTP status line exactly once, on the first call
// regardless of which branch below it is invoked from.
func (fw *FrameWriter) writeHead(status int) {
	if !fw.firstWrite {
		return
	}
	fw.w.WriteHeader(status)
	fw.firstWrite = false
}

// WriteEnvelope sends one Envelope. In multi-frame mode every call emits a
// new length-prefixed frame over the same connection (for status streaming);
// in legacy mode only the first call produces output, matching the original
// single-object response a non-streaming client expects.
func (fw *FrameWriter) WriteEnvelope(status int, env Envelope) error {
	if !fw.multiFrame {
		if !fw.firstWrite {
			return nil // legacy clients get exactly one object
		}
		fw.writeHead(status)
		return json.NewEncoder(fw.w).Encode(env)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	fw.writeHead(status)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	if flusher, ok := fw.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
