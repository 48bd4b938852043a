package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/dustin/go-humanize"

	"buildd/internal/config"
	"buildd/internal/expiry"
	"buildd/internal/fileutil"
	"buildd/internal/journal"
	"buildd/internal/memory"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := errors.Join(fileutil.CheckReadable(path), fileutil.CheckWritable(path)); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckJournal opens the stop-event journal, which also validates its schema.
func CheckJournal(ctx context.Context, path string) Result {
	const name = "Journal"

	j, err := journal.Open(ctx, path)
	if err != nil {
		if errors.Is(err, journal.ErrSchemaMismatch) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (schema mismatch; move the file aside)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer j.Close()
	if _, err := j.Recent(ctx, 1); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (query failed: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckMemory builds the configured low-memory threshold and reports whether
// the host is currently below it.
func CheckMemory(ctx context.Context, cfg *config.Config, info memory.Info) Result {
	const name = "Memory"

	if info == nil {
		info = memory.NewHost()
	}
	reading, err := memory.Read(ctx, info)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unable to read host memory (%v)", err)}
	}

	mem := cfg.Expiration.Memory
	opts := []expiry.LowMemoryOption{
		expiry.WithThresholdBounds(uint64(mem.MinThresholdBytes), uint64(mem.MaxThresholdBytes)),
	}
	var check *expiry.LowMemoryCheck
	if mem.MinFreeBytes > 0 {
		check, err = expiry.NewLowMemoryCheck(info, uint64(mem.MinFreeBytes), opts...)
	} else {
		check, err = expiry.BelowFreeFraction(ctx, info, mem.MinFreeFraction, opts...)
	}
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid threshold (%v)", err)}
	}

	detail := fmt.Sprintf("%s free, threshold %s", humanize.IBytes(reading.Free), humanize.IBytes(check.Threshold()))
	if reading.Free < check.Threshold() {
		return Result{Name: name, Detail: detail + " (daemon would expire)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckListen verifies that bind can be listened on. A bind already in use by
// a running daemon fails too.
func CheckListen(name, bind string) Result {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		if addrInUse(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (in use)", bind)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err)}
	}
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: bind + " (available)"}
}
