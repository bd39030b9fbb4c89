// Package wire implements the text-framed client protocol: an incremental
// parser for broker-to-client frames, an encoder for client-to-broker
// frames, and the header block codec shared by both directions.
//
// Framing is length-driven. Message payloads are bounded solely by the byte
// counts declared on the frame's first line, so payload content is never
// inspected for delimiters. A declared header length that does not land on
// the block's terminating blank line is a protocol error; the stream cannot
// be resynchronized by scanning and the owning connection must be torn down.
package wire
