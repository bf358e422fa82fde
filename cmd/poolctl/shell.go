package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/tuannm99/clockpool/internal/bufferpool"
	"github.com/tuannm99/clockpool/internal/storage/common"
)

const shellHelp = `commands:
  new                        allocate a page and pin it
  fetch <id>                 pin a page
  unpin <id> [dirty]         drop one pin (written pages are always unpinned dirty)
  write <id> <offset> <text> copy text into a page the shell holds
  read <id> [n]              hex dump the first n bytes (default 16)
  flush <id>                 write a resident page to disk
  flushall                   write every resident page
  delete <id>                drop a page from the pool and deallocate it
  stats                      pool counters
  help                       show this help
  quit | exit                release held pins and leave`

var errNotHeld = errors.New("page not held by this shell; fetch it first")

// heldPage is a page the shell has pinned. pins counts the shell's own pins.
type heldPage struct {
	page  *bufferpool.Page
	pins  int
	dirty bool
}

// shell runs one command per line against a pool.
type shell struct {
	bpm  *bufferpool.BufferPoolManager
	lm   bufferpool.LogManager
	out  io.Writer
	held map[common.PageID]*heldPage
}

func newShell(bpm *bufferpool.BufferPoolManager, lm bufferpool.LogManager, out io.Writer) *shell {
	return &shell{
		bpm:  bpm,
		lm:   lm,
		out:  out,
		held: make(map[common.PageID]*heldPage),
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".poolctl_history"
	}
	return filepath.Join(home, ".poolctl_history")
}

// runShell reads commands until quit, EOF or cancellation, then releases
// whatever the shell still holds.
func runShell(ctx context.Context, bpm *bufferpool.BufferPoolManager, lm bufferpool.LogManager, historyPath string, stdout io.Writer) (err error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "poolctl> ",
		HistoryFile:     historyPath,
		HistoryLimit:    2000,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          stdout,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	sh := newShell(bpm, lm, stdout)
	defer func() { err = multierr.Append(err, sh.releaseAll()) }()

	fmt.Fprintf(stdout, "pool of %d frames, type help for commands\n", bpm.PoolSize())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF
			return nil
		}

		quit, err := sh.exec(line)
		if err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// exec runs one command line. quit reports whether the shell should stop.
func (s *shell) exec(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", `\q`:
		return true, nil
	case "help", `\help`:
		fmt.Fprintln(s.out, shellHelp)
		return false, nil
	case "stats":
		s.printStats()
		return false, nil
	case "flushall":
		if err := s.bpm.FlushAllPages(); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "OK")
		return false, nil
	case "new":
		p, err := s.bpm.NewPage()
		if err != nil {
			return false, err
		}
		s.hold(p)
		fmt.Fprintf(s.out, "page %d allocated and pinned\n", p.ID())
		return false, nil
	}

	if len(args) == 0 {
		return false, fmt.Errorf("usage: %s <id> ...", cmd)
	}
	id, err := parsePageID(args[0])
	if err != nil {
		return false, err
	}

	switch cmd {
	case "fetch":
		p, err := s.bpm.FetchPage(id)
		if err != nil {
			return false, err
		}
		s.hold(p)
		return false, s.printMeta(id)
	case "unpin":
		return false, s.unpin(id, len(args) > 1 && args[1] == "dirty")
	case "write":
		return false, s.write(id, args[1:])
	case "read":
		return false, s.read(id, args[1:])
	case "flush":
		if err := s.bpm.FlushPage(id); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "OK")
		return false, nil
	case "delete":
		if err := s.bpm.DeletePage(id); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "page %d deleted\n", id)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (s *shell) hold(p *bufferpool.Page) {
	h, ok := s.held[p.ID()]
	if !ok {
		h = &heldPage{page: p}
		s.held[p.ID()] = h
	}
	h.pins++
}

// unpin passes ids the shell does not hold straight to the pool, so its
// errors show up as they are.
func (s *shell) unpin(id common.PageID, dirty bool) error {
	h, ok := s.held[id]
	if !ok {
		return s.bpm.UnpinPage(id, dirty)
	}
	if err := s.bpm.UnpinPage(id, dirty || h.dirty); err != nil {
		return err
	}
	h.pins--
	if h.pins == 0 {
		delete(s.held, id)
		fmt.Fprintf(s.out, "page %d released\n", id)
		return nil
	}
	return s.printMeta(id)
}

func (s *shell) write(id common.PageID, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: write <id> <offset> <text>")
	}
	h, ok := s.held[id]
	if !ok {
		return errNotHeld
	}
	off, err := strconv.Atoi(args[0])
	if err != nil || off < 0 {
		return fmt.Errorf("bad offset %q", args[0])
	}
	text := strings.Join(args[1:], " ")
	if off+len(text) > common.PageSize {
		return fmt.Errorf("write of %d bytes at %d overflows the page", len(text), off)
	}

	copy(h.page.Data()[off:], text)
	h.dirty = true
	if s.lm == nil {
		fmt.Fprintf(s.out, "wrote %d bytes\n", len(text))
		return nil
	}
	lsn, err := s.lm.AppendPageImage(id, h.page.Data())
	if err != nil {
		return fmt.Errorf("log page %d: %w", id, err)
	}
	if err := s.lm.Flush(lsn); err != nil {
		return fmt.Errorf("log page %d: %w", id, err)
	}
	fmt.Fprintf(s.out, "wrote %d bytes (lsn %d)\n", len(text), lsn)
	return nil
}

func (s *shell) read(id common.PageID, args []string) error {
	h, ok := s.held[id]
	if !ok {
		return errNotHeld
	}
	n := 16
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("bad length %q", args[0])
		}
		n = min(v, common.PageSize)
	}
	fmt.Fprintf(s.out, "% x\n", h.page.Data()[:n])
	return nil
}

func (s *shell) printMeta(id common.PageID) error {
	meta, err := s.bpm.Meta(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "page %d: pin count %d, dirty %t\n", id, meta.PinCount, meta.Dirty)
	return nil
}

func (s *shell) printStats() {
	st := s.bpm.Stats()
	fmt.Fprintf(s.out, "frames %d (%d free, %s)\n",
		s.bpm.PoolSize(), s.bpm.FreeFrames(), humanize.IBytes(uint64(s.bpm.PoolSize())*common.PageSize))
	fmt.Fprintf(s.out, "hits %s, misses %s, evictions %s, write-backs %s\n",
		humanize.Comma(int64(st.Hits)), humanize.Comma(int64(st.Misses)),
		humanize.Comma(int64(st.Evictions)), humanize.Comma(int64(st.WriteBacks)))
}

// releaseAll drops every pin the shell still holds.
func (s *shell) releaseAll() error {
	var err error
	for id, h := range s.held {
		for ; h.pins > 0; h.pins-- {
			err = multierr.Append(err, s.bpm.UnpinPage(id, h.dirty))
		}
		delete(s.held, id)
	}
	return err
}

func parsePageID(s string) (common.PageID, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 0 {
		return common.InvalidPageID, fmt.Errorf("bad page id %q", s)
	}
	return common.PageID(v), nil
}
