package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// ftpFileUnavailable is the FTP reply code for a missing file (RFC 959).
const ftpFileUnavailable = 550

// FTPConfig describes an FTP catalog.
type FTPConfig struct {
	Address  string
	User     string
	Password string
	Timeout  time.Duration
}

// FTP is a Catalog backed by an FTP server.
type FTP struct {
	cfg FTPConfig
}

// NewFTP creates an FTP catalog.
func NewFTP(cfg FTPConfig) *FTP {
	return &FTP{cfg: cfg}
}

// Connect dials and logs in to the server.
func (f *FTP) Connect(ctx context.Context) (Session, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if f.cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(f.cfg.Timeout))
	}

	conn, err := ftp.Dial(f.cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", f.cfg.Address, err)
	}

	if err := conn.Login(f.cfg.User, f.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("logging in to %s as %s: %w", f.cfg.Address, f.cfg.User, err)
	}

	return &ftpSession{conn: conn}, nil
}

type ftpSession struct {
	conn *ftp.ServerConn
}

// List runs NLST on dir. Some servers answer with paths, others with bare
// names, so entries are reduced to their base names.
func (s *ftpSession) List(dir string) ([]string, error) {
	entries, err := s.conn.NameList(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, path.Base(e))
	}
	return names, nil
}

func (s *ftpSession) Fetch(p string) ([]byte, error) {
	resp, err := s.conn.Retr(p)
	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code == ftpFileUnavailable {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("retrieving %s: %w", p, err)
	}

	data, readErr := io.ReadAll(resp)
	closeErr := resp.Close()
	if readErr != nil {
		return nil, fmt.Errorf("reading %s: %w", p, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("completing transfer of %s: %w", p, closeErr)
	}
	return data, nil
}

func (s *ftpSession) Close() error {
	return s.conn.Quit()
}
