//go:build !unix

package preflight

func addrInUse(error) bool { return false }
