package identity

import "errors"

// ErrNoBatchResolver is returned by Phid when no BatchResolver has been
// installed.
var ErrNoBatchResolver = errors.New("identity: no batch resolver installed")

// ErrNoEmailResolver is returned by Email when no EmailResolver has been
// installed.
var ErrNoEmailResolver = errors.New("identity: no email resolver installed")
