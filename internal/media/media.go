// Package media uploads cover images to an external object store and
// removes them again when their book is deleted.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:generate mockgen -source=media.go -destination=mocks/mock_store.go -package=mocks

var (
	// ErrUnsupportedSource is returned for sources that are neither data URLs nor http(s) URLs.
	ErrUnsupportedSource = errors.New("unsupported image source")
	// ErrNotImage is returned when the payload is not an image.
	ErrNotImage = errors.New("payload is not an image")
	// ErrTooLarge is returned when the payload exceeds the configured limit.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrBlockedAddress is returned when a remote source resolves to a
	// loopback, private, link-local or otherwise internal address.
	ErrBlockedAddress = errors.New("image source address is not allowed")
)

const maxRedirects = 5

// NewFetchClient returns the client used to download remote sources. It
// refuses to connect to internal addresses, checked on the resolved IP of
// every connection including redirects, and never uses a proxy.
func NewFetchClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: rejectInternal,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("%w: redirect to %s", ErrUnsupportedSource, req.URL.Scheme)
			}
			return nil
		},
	}
}

// rejectInternal runs after DNS resolution with the literal ip:port being dialed.
func rejectInternal(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if IsInternalAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsInternalAddr reports whether ip must not be fetched from.
func IsInternalAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return !ip.IsValid() ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		sharedAddressSpace.Contains(ip)
}

// Store hosts images and serves them by URL.
type Store interface {
	// Upload stores the image referenced by source and returns its hosted URL.
	Upload(ctx context.Context, source string) (string, error)
	// Delete removes a previously hosted image. It never fails the caller;
	// the outcome is reported in the result.
	Delete(ctx context.Context, url string) DeleteResult
}

// DeleteResult is the outcome of a best-effort image removal.
type DeleteResult struct {
	// Key is the object key that was targeted, empty when skipped.
	Key string
	// Skipped is set when the URL does not belong to this store.
	Skipped bool
	// Err is the removal failure, if any.
	Err error
}

// Image is a decoded upload payload.
type Image struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Load resolves source into image bytes. Data URLs are decoded in place;
// http(s) URLs are fetched with client, normally one from NewFetchClient.
// Payloads above maxBytes are rejected.
func Load(ctx context.Context, client *http.Client, source string, maxBytes int64) (*Image, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(source, "data:"):
		data, err = decodeDataURL(source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		data, err = fetch(ctx, client, source, maxBytes)
	default:
		return nil, ErrUnsupportedSource
	}
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	return &Image{
		Data:        data,
		ContentType: mtype.String(),
		Extension:   mtype.Extension(),
	}, nil
}

// decodeDataURL decodes data:[<mediatype>];base64,<payload>.
func decodeDataURL(source string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(source, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: data URL must be base64 encoded", ErrUnsupportedSource)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	return data, nil
}

func fetch(ctx context.Context, client *http.Client, source string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: unexpected status %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}
