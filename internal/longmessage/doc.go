// Package longmessage implements the chunked, MD5-checked upload protocol
// used to deliver firmware, framework packages, robot configuration and
// test kits over the wireless link.
//
// # Wire format
//
// A write request is a header byte followed by a payload:
//
//	0 SELECT_TYPE    1 byte message type
//	1 INIT_TRANSFER  16 byte MD5 of the full message
//	2 UPLOAD_CHUNK   at least 1 byte of message data
//	3 FINALIZE       empty
//
// and is answered with a single result byte (see Result). A read request
// returns the status byte of the selected type, followed by the 16 byte
// digest and a 4 byte big-endian length when a digest is known.
//
// # State machine
//
//	(none) --SELECT_TYPE--> READ --INIT_TRANSFER--> UPLOADING --FINALIZE (bad)--> VALIDATION_ERROR
//	                         ^                        |
//	                         +---FINALIZE (digest ok)-+
//
// INIT_TRANSFER enters UPLOADING from any state once a type is selected,
// abandoning a transfer in progress. SELECT_TYPE returns to READ from any
// state; it is the only way out of VALIDATION_ERROR other than a new
// INIT_TRANSFER.
package longmessage
