//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop/errclass (classification logic
// completing the per-OS errno tables in unix.go/windows.go).
//

// Package errclass classifies transport errors into short, stable string
// codes consumed by [github.com/aicp-go/aicp/internal/obs.ErrClassifier],
// so the aicp failure model (spec §4.4/§7) can log a consistent class
// alongside the raw error across platforms.
package errclass

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Classify maps err to a short class string, or "" if err is nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, io.EOF) {
		return "EOF"
	}
	if errors.Is(err, net.ErrClosed) {
		return "ECLOSED"
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return "ETIMEDOUT"
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if class, ok := classifyErrno(errno); ok {
			return class
		}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return "EIO"
	}
	return "EUNKNOWN"
}

func classifyErrno(errno syscall.Errno) (string, bool) {
	switch errno {
	case errEADDRNOTAVAIL:
		return "EADDRNOTAVAIL", true
	case errEADDRINUSE:
		return "EADDRINUSE", true
	case errECONNABORTED:
		return "ECONNABORTED", true
	case errECONNREFUSED:
		return "ECONNREFUSED", true
	case errECONNRESET:
		return "ECONNRESET", true
	case errEHOSTUNREACH:
		return "EHOSTUNREACH", true
	case errEINVAL:
		return "EINVAL", true
	case errEINTR:
		return "EINTR", true
	case errENETDOWN:
		return "ENETDOWN", true
	case errENETUNREACH:
		return "ENETUNREACH", true
	case errENOBUFS:
		return "ENOBUFS", true
	case errENOTCONN:
		return "ENOTCONN", true
	case errEPIPE:
		return "EPIPE", true
	case errEPROTONOSUPPORT:
		return "EPROTONOSUPPORT", true
	case errETIMEDOUT:
		return "ETIMEDOUT", true
	default:
		return "", false
	}
}
