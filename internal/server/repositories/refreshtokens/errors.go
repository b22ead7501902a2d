package refreshtokens

import "errors"

var errDuplicateHash = errors.New("duplicate token hash")
