// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"
)

// DefaultPort is the api port used when neither the flag nor the
// PIPWATCH_SERVER_PORT environment variable is set.
const DefaultPort = 10000

type ClientFlags struct {
	port        int
	Host        string
	APIPath     string
	HTTPTimeout time.Duration
}

func (cf *ClientFlags) SetFlags(fset *flag.FlagSet) {
	fset.IntVar(&cf.port, "connect-port", 0, "TCP port number for the api endpoint (default=10000 or PIPWATCH_SERVER_PORT value)")
	fset.StringVar(&cf.Host, "connect-host", "127.0.0.1", "Hostname or IP address for the api endpoint")
	fset.StringVar(&cf.APIPath, "api-path", "/", "base path to the api handler")
	fset.DurationVar(&cf.HTTPTimeout, "http-timeout", 30*time.Second, "http client timeout")
}

func (cf *ClientFlags) Port() int {
	if cf.port != 0 {
		return cf.port
	}
	return portFromEnv()
}

func portFromEnv() int {
	if v := os.Getenv("PIPWATCH_SERVER_PORT"); len(v) != 0 {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			return int(port)
		}
	}
	return DefaultPort
}

func (cf *ClientFlags) AddressURL() *url.URL {
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cf.Host, strconv.Itoa(cf.Port())),
		Path:   cf.APIPath,
	}
}

func (cf *ClientFlags) HttpClient() *http.Client {
	return &http.Client{
		Timeout: cf.HTTPTimeout,
	}
}

// Get fetches the json response from the api path of a running daemon.
func Get[RESP any](ctx context.Context, cf *ClientFlags, subpath string, values url.Values) (*RESP, error) {
	addrURL := cf.AddressURL()
	addrURL.Path = path.Join(addrURL.Path, subpath)
	addrURL.RawQuery = values.Encode()
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, addrURL.String(), nil)
	if err != nil {
		return nil, err
	}

	client := cf.HttpClient()
	resp, err := client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("could not reach pipwatch daemon at %s: %w", addrURL.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http status code %d: %s", resp.StatusCode, data)
	}
	response := new(RESP)
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}
	return response, nil
}
