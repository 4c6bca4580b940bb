// Package fragment reassembles messages that were split across several
// reliable packets.
//
// A fragmented message starts with an initial piece (index 0) that declares
// the number of pieces, the total payload size and the message identity.
// Segments carry the remaining pieces by index. Once the last missing piece
// arrives the chunks are concatenated in index order and the length is
// checked against the declared size. Only then does the assembly become
// completed.
//
// Completed assemblies are not handed out eagerly. The owner pulls them and
// answers with Keep (leave it in the tracker) or Discard (remove it), which
// keeps the lifetime under the caller's control while Poll sweeps everything
// nobody claimed.
//
// Error reporting uses the Error type with a Code:
//
//   - CodeNonexistent: segment for an unknown fragment id
//   - CodeAlreadyStarted: second initial piece for an id in progress
//   - CodeSizeMismatch: reassembled length differs from the declared size
//   - CodeSegmentAlreadyProvided: index was already filled
//   - CodeInvalidSegment: index, count or size out of the allowed bounds
package fragment
