package content

import "errors"

// Error kinds returned by the repository. Match them with errors.Is; the
// wrapped cause stays reachable as well (not-found errors also match
// os.ErrNotExist).
var (
	ErrIO       = errors.New("content: read failed")
	ErrParse    = errors.New("content: invalid metadata")
	ErrNotFound = errors.New("content: post not found")
)
