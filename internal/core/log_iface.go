package core

import "github.com/phuocnguyenncc/mezon-sub000/internal/domain"

// CallLogSink receives one record per call attempt at its terminal transition.
type CallLogSink interface {
	Record(domain.CallLog)
}
