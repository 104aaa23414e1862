// Package transfer dispatches by (Protocol, Flavor, Direction) to the
// right engine and exposes a uniform Run/Cancel/Skip surface, matching
// spec.md §4.7's protocol façade. Grounded on jermit's per-protocol-
// class constructors (Ymodem1.java's NewYmodemReceiver/NewYmodemSender,
// one constructor per direction rather than one giant switch inside a
// single class) and the teacher's functional-options session
// construction (zmodem/session.go's NewSession/Option).
package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/protocol/kermit"
	"github.com/dlamine/goxfer/protocol/xmodem"
	"github.com/dlamine/goxfer/protocol/ymodem"
	"github.com/dlamine/goxfer/protocol/zmodem"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// Transfer wraps one concrete engine instantiation behind a uniform
// surface, so a caller never has to know which of the four protocol
// packages it is actually driving underneath.
type Transfer struct {
	sn  *session.Session
	run func(ctx context.Context) error
}

// Session returns the underlying session.Session, for observers that
// want to poll progress, read the message log, or subscribe to
// snapshots while the transfer runs on another goroutine.
func (t *Transfer) Session() *session.Session { return t.sn }

// Run drives the engine to completion and returns the session's
// terminal state alongside any error. It must be called on the same
// goroutine that owns this Transfer; Cancel/Skip are the only methods
// safe to call concurrently with Run, per spec.md §5's engine/observer
// split.
func (t *Transfer) Run(ctx context.Context) (session.State, error) {
	err := t.run(ctx)
	return t.sn.State(), err
}

// Cancel requests cancellation; the engine honors it at its next
// suspension point and transitions to ABORT, per spec.md §5.
func (t *Transfer) Cancel(keepPartial bool) { t.sn.RequestCancel(keepPartial) }

// Skip requests that the in-flight file be skipped. Only the Kermit
// engine acts on it, before its next packet, even mid-file; the Xmodem,
// Ymodem and Zmodem engines never read the skip flag, so on them the
// request has no effect, not even at a file boundary.
func (t *Transfer) Skip(keepPartial bool) { t.sn.RequestSkip(keepPartial) }

// New builds a Transfer for (protocol, flavor, direction), dispatching
// to the matching engine package. flavor is that protocol's own flavor
// string (e.g. "crc", "1k", "1k-g", "g", "crc32"); an empty string
// selects the protocol's default.
//
// For an upload, paths names the local files to send (Xmodem: exactly
// one, enforced below — it has no batch or file-metadata frame). For a
// download, target is a destination directory for every protocol
// except Xmodem, which carries no filename on the wire and so treats
// target as the destination file path itself.
func New(protocol session.Protocol, flavor string, direction session.Direction, paths []string, target string, ch wire.Channel, opts ...session.Option) (*Transfer, error) {
	switch protocol {
	case session.Xmodem:
		return newXmodem(flavor, direction, paths, target, ch, opts...)
	case session.Ymodem:
		return newYmodem(flavor, direction, paths, target, ch, opts...)
	case session.Zmodem:
		return newZmodem(flavor, direction, paths, target, ch, opts...)
	case session.Kermit:
		return newKermit(direction, paths, target, ch, opts...)
	default:
		return nil, fmt.Errorf("transfer: unknown protocol %v", protocol)
	}
}

// Flavors lists the valid flavor strings New accepts for protocol, for
// CLI help text and flag validation.
func Flavors(protocol session.Protocol) []string {
	switch protocol {
	case session.Xmodem:
		out := make([]string, 0, len(xmodem.ValidFlavors()))
		for _, f := range xmodem.ValidFlavors() {
			out = append(out, string(f))
		}
		return out
	case session.Ymodem:
		out := make([]string, 0, len(ymodem.ValidFlavors()))
		for _, f := range ymodem.ValidFlavors() {
			out = append(out, string(f))
		}
		return out
	case session.Zmodem:
		return []string{"vanilla", "crc32"}
	default:
		return nil
	}
}

func newXmodem(flavor string, direction session.Direction, paths []string, target string, ch wire.Channel, opts ...session.Option) (*Transfer, error) {
	f, err := parseXmodemFlavor(flavor)
	if err != nil {
		return nil, err
	}
	cfg := xmodem.DefaultConfig()
	cfg.Flavor = f

	switch direction {
	case session.Upload:
		if len(paths) != 1 {
			return nil, fmt.Errorf("transfer: xmodem upload takes exactly one file, got %d", len(paths))
		}
		info, err := openUploadFile(paths[0])
		if err != nil {
			return nil, err
		}
		sn := session.NewUploadSession(session.Xmodem, session.Flavor(f), []*session.FileInfo{info}, opts...)
		sn.SetTotals(info.Size, 0)
		eng := xmodem.NewSender(cfg, ch, sn)
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.Run(ctx, info)
			finalize(sn, direction)
			return err
		}}, nil

	case session.Download:
		lf, err := session.CreateOSFile(target, 0644)
		if err != nil {
			return nil, session.WrapError(session.ErrFile, "creating destination file", err)
		}
		info := &session.FileInfo{LocalFile: lf, Filename: filepath.Base(target)}
		sn := session.NewDownloadSession(session.Xmodem, session.Flavor(f), filepath.Dir(target), opts...)
		eng := xmodem.NewReceiver(cfg, ch, sn)
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.Run(ctx, info)
			finalize(sn, direction)
			return err
		}}, nil

	default:
		return nil, fmt.Errorf("transfer: unknown direction %v", direction)
	}
}

func newYmodem(flavor string, direction session.Direction, paths []string, target string, ch wire.Channel, opts ...session.Option) (*Transfer, error) {
	f, err := parseYmodemFlavor(flavor)
	if err != nil {
		return nil, err
	}
	cfg := ymodem.DefaultConfig()
	cfg.Flavor = f

	switch direction {
	case session.Upload:
		infos, err := openUploadFiles(paths)
		if err != nil {
			return nil, err
		}
		sn := session.NewUploadSession(session.Ymodem, session.Flavor(f), infos, opts...)
		eng := ymodem.NewSender(cfg, ch, sn)
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.RunBatch(ctx, infos)
			finalize(sn, direction)
			return err
		}}, nil

	case session.Download:
		sn := session.NewDownloadSession(session.Ymodem, session.Flavor(f), target, opts...)
		eng := ymodem.NewReceiver(cfg, ch, sn, freshFileOpener(target))
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.RunBatch(ctx)
			finalize(sn, direction)
			return err
		}}, nil

	default:
		return nil, fmt.Errorf("transfer: unknown direction %v", direction)
	}
}

func newZmodem(flavor string, direction session.Direction, paths []string, target string, ch wire.Channel, opts ...session.Option) (*Transfer, error) {
	use32 := true
	switch flavor {
	case "", "crc32":
		use32 = true
	case "vanilla":
		use32 = false
	default:
		return nil, fmt.Errorf("transfer: unknown zmodem flavor %q", flavor)
	}
	cfg := zmodem.DefaultConfig()
	cfg.Use32BitCRC = use32
	flavorName := session.Flavor("crc32")
	if !use32 {
		flavorName = session.Flavor("vanilla")
	}

	switch direction {
	case session.Upload:
		infos, err := openUploadFiles(paths)
		if err != nil {
			return nil, err
		}
		sn := session.NewUploadSession(session.Zmodem, flavorName, infos, opts...)
		sn.SetTotals(sumSizes(infos), 0)
		eng := zmodem.NewSender(cfg, ch, sn)
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.RunBatch(ctx, infos)
			finalize(sn, direction)
			return err
		}}, nil

	case session.Download:
		sn := session.NewDownloadSession(session.Zmodem, flavorName, target, opts...)
		eng := zmodem.NewReceiver(cfg, ch, sn, resumingFileOpener(target))
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.RunBatch(ctx)
			finalize(sn, direction)
			return err
		}}, nil

	default:
		return nil, fmt.Errorf("transfer: unknown direction %v", direction)
	}
}

func newKermit(direction session.Direction, paths []string, target string, ch wire.Channel, opts ...session.Option) (*Transfer, error) {
	cfg := kermit.DefaultConfig()

	switch direction {
	case session.Upload:
		infos, err := openUploadFiles(paths)
		if err != nil {
			return nil, err
		}
		sn := session.NewUploadSession(session.Kermit, "", infos, opts...)
		sn.SetTotals(sumSizes(infos), 0)
		eng := kermit.NewSender(cfg, ch, sn)
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.RunBatch(ctx, infos)
			finalize(sn, direction)
			return err
		}}, nil

	case session.Download:
		sn := session.NewDownloadSession(session.Kermit, "", target, opts...)
		opener := func(filename string) (session.LocalFile, error) {
			return session.CreateOSFile(filepath.Join(target, filepath.Base(filename)), 0644)
		}
		eng := kermit.NewReceiver(cfg, ch, sn, opener)
		return &Transfer{sn: sn, run: func(ctx context.Context) error {
			err := eng.RunBatch(ctx)
			finalize(sn, direction)
			return err
		}}, nil

	default:
		return nil, fmt.Errorf("transfer: unknown direction %v", direction)
	}
}

func parseXmodemFlavor(s string) (xmodem.Flavor, error) {
	if s == "" {
		return xmodem.CRC, nil
	}
	for _, f := range xmodem.ValidFlavors() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("transfer: unknown xmodem flavor %q", s)
}

func parseYmodemFlavor(s string) (ymodem.Flavor, error) {
	if s == "" {
		return ymodem.Standard, nil
	}
	for _, f := range ymodem.ValidFlavors() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("transfer: unknown ymodem flavor %q", s)
}

func openUploadFile(path string) (*session.FileInfo, error) {
	lf, err := session.OpenOSFile(path)
	if err != nil {
		return nil, session.WrapError(session.ErrFile, "opening upload file", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, session.WrapError(session.ErrFile, "stating upload file", err)
	}
	return &session.FileInfo{
		LocalFile: lf,
		Filename:  filepath.Base(path),
		Size:      st.Size(),
		ModTime:   st.ModTime().Unix(),
		Mode:      st.Mode(),
	}, nil
}

func sumSizes(infos []*session.FileInfo) int64 {
	var total int64
	for _, f := range infos {
		total += f.Size
	}
	return total
}

func openUploadFiles(paths []string) ([]*session.FileInfo, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("transfer: at least one file is required for upload")
	}
	infos := make([]*session.FileInfo, 0, len(paths))
	for _, p := range paths {
		info, err := openUploadFile(p)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// freshFileOpener always creates (truncating) the destination file,
// for protocols with no crash-recovery story (Ymodem/Kermit): a
// repeated transfer of the same name always starts from zero.
func freshFileOpener(dir string) ymodem.FileOpener {
	return func(meta framing.FileMetadata) (session.LocalFile, error) {
		mode := os.FileMode(meta.Mode)
		if mode == 0 {
			mode = 0644
		}
		return session.CreateOSFile(filepath.Join(dir, filepath.Base(meta.Name)), mode)
	}
}

// resumingFileOpener implements spec.md §4.5's crash recovery: if dir
// already holds a file with this name, it is opened for read-write
// without truncation so the Zmodem receiver can resume appending from
// its current length instead of starting over.
func resumingFileOpener(dir string) zmodem.FileOpener {
	return func(meta framing.FileMetadata) (session.LocalFile, error) {
		path := filepath.Join(dir, filepath.Base(meta.Name))
		if _, err := os.Stat(path); err == nil {
			return session.OpenResumeOSFile(path)
		}
		mode := os.FileMode(meta.Mode)
		if mode == 0 {
			mode = 0644
		}
		return session.CreateOSFile(path, mode)
	}
}

// finalize closes every local file handle the session touched and, on
// an aborted download where the caller asked not to keep partial data,
// deletes the file in flight — matching spec.md §5's resource-release
// and cancellation contracts, centralized here so none of the four
// engine packages need to know about it.
func finalize(sn *session.Session, direction session.Direction) {
	for _, f := range sn.Files() {
		if f.LocalFile != nil {
			_ = f.LocalFile.Close()
		}
	}
	if direction != session.Download || sn.State() != session.Abort || sn.KeepPartial() {
		return
	}
	if f := sn.CurrentFile(); f != nil && f.LocalFile != nil {
		_ = f.LocalFile.Delete()
	}
}
