package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

// Config задаёт путь к выходному файлу; "-" означает stdout.
type Config struct {
	Path string
}

// Loader копирует поток в UTF-8 файл, одна запись на строку, без заголовка.
type Loader struct {
	path string
	f    *os.File
	own  bool
}

func New(cfg Config) (*Loader, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file: path is empty")
	}
	if cfg.Path == "-" {
		return &Loader{path: cfg.Path, f: os.Stdout}, nil
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("file: create %s: %w", cfg.Path, err)
	}
	return &Loader{path: cfg.Path, f: f, own: true}, nil
}

func (l *Loader) Load(ctx context.Context, r io.Reader) (int64, error) {
	out := bufio.NewWriterSize(l.f, 256<<10)
	lc := &lineCounter{w: out}
	if _, err := io.Copy(lc, contextReader{ctx: ctx, r: r}); err != nil {
		return lc.lines, fmt.Errorf("file: write %s: %w", l.path, err)
	}
	if err := out.Flush(); err != nil {
		return lc.lines, fmt.Errorf("file: flush %s: %w", l.path, err)
	}
	if l.own {
		if err := l.f.Sync(); err != nil {
			return lc.lines, fmt.Errorf("file: sync %s: %w", l.path, err)
		}
	}
	return lc.lines, nil
}

func (l *Loader) Close() {
	if l.own && l.f != nil {
		l.f.Close()
		l.f = nil
	}
}

type lineCounter struct {
	w     io.Writer
	lines int64
}

func (c *lineCounter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.lines += int64(bytes.Count(p[:n], []byte{'\n'}))
	return n, err
}

// contextReader прерывает копирование при отмене ctx.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
