// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package cmd implements the cloudant commands.
package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/go-kivik/cloudant"
	"github.com/go-kivik/cloudant/chttp"
	"github.com/go-kivik/cloudant/cmd/cloudant/config"
	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
	"github.com/go-kivik/cloudant/cmd/cloudant/input"
	"github.com/go-kivik/cloudant/cmd/cloudant/log"
	"github.com/go-kivik/cloudant/cmd/cloudant/output"
)

type root struct {
	confFile string
	debug    bool
	log      log.Logger
	conf     *config.Config
	cmd      *cobra.Command
	fmt      *output.Formatter
	input    *input.Input

	requestTimeout       string
	parsedRequestTimeout time.Duration
	connectTimeout       string
	parsedConnectTimeout time.Duration
	retryDelay           string
	retryTimeout         string
	concurrency          int
	rateLimitRetries     int

	trace      *chttp.ClientTrace
	dumpHeader bool
	verbose    bool

	// retry attempts
	retryCount         int
	retryDelayParsed   time.Duration
	retryTimeoutParsed time.Duration

	// resolveHome is used to resolve ~ in the default config file path
	resolveHome func(string) string
}

// Execute runs the command line, and exits.
func Execute(ctx context.Context) {
	lg := log.New()
	root := rootCmd(lg)
	os.Exit(root.execute(ctx))
}

func (r *root) execute(ctx context.Context) int {
	ctx = chttp.WithClientTrace(ctx, r.clientTrace())
	err := r.cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	r.log.Error(err)
	return extractExitCode(err)
}

func extractExitCode(err error) int {
	if code := errors.ExitStatus(err); code != 0 {
		return code
	}

	// Any unhandled errors are assumed to be from Cobra, so return a "failed
	// to initialize" error
	return errors.ErrUsage
}

func resolveHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	return filepath.Join(usr.HomeDir, path[2:])
}

func rootCmd(lg log.Logger) *root {
	r := &root{
		log:         lg,
		fmt:         output.New(),
		input:       input.New(),
		conf:        config.New(),
		resolveHome: resolveHome,
	}
	r.cmd = &cobra.Command{
		Use:               "cloudant",
		Short:             "cloudant talks to CouchDB and Cloudant servers",
		Long:              `This tool reads and writes documents, and pages through views, over the CouchDB HTTP API`,
		PersistentPreRunE: r.init,
		SilenceErrors:     true,
	}

	pf := r.cmd.PersistentFlags()

	r.fmt.ConfigFlags(pf)
	pf.StringVar(&r.confFile, "config", "~/.cloudant/config.yaml", "Path to config file to use for CLI requests")
	pf.BoolVar(&r.debug, "debug", false, "Enable debug output")
	pf.IntVar(&r.retryCount, "retry", 0, "In case of transient error, retry up to this many times. A negative value retries forever.")
	pf.BoolVarP(&r.dumpHeader, "header", "H", false, "Output response header")
	pf.BoolVarP(&r.verbose, "verbose", "v", false, "Output bi-directional network traffic")
	pf.IntVar(&r.concurrency, "concurrency", cloudant.DefaultMaxConcurrency, "Maximum number of requests in flight at once.")
	pf.IntVar(&r.rateLimitRetries, "rate-limit-retries", 3, "Retry requests rejected with 429 Too Many Requests up to this many times.")

	pf.StringVar(&r.requestTimeout, "request-timeout", "", "The time limit for each request.")
	pf.StringVar(&r.retryDelay, "retry-delay", "", "Delay between retry attempts. Disables the default exponential backoff algorithm.")
	pf.StringVar(&r.connectTimeout, "connect-timeout", "", "Limits the time spent establishing a TCP connection.")
	pf.StringVar(&r.retryTimeout, "retry-timeout", "", "When used with --retry, no more retries will be attempted after this timeout.")

	r.cmd.AddCommand(getCmd(r))
	r.cmd.AddCommand(putCmd(r))
	r.cmd.AddCommand(deleteCmd(r))
	r.cmd.AddCommand(bulkCmd(r))
	r.cmd.AddCommand(createIndexCmd(r))
	r.cmd.AddCommand(viewCmd(r))
	r.cmd.AddCommand(versionCmd(r))

	return r
}

func parseDuration(val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	if d, err := strconv.ParseFloat(val, 64); err == nil {
		if d < 0 {
			return 0, errors.Code(errors.ErrUsage, "negative timeout not permitted")
		}
		return time.Duration(d * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Code(errors.ErrUsage, err)
	}
	if d < 0 {
		return 0, errors.Code(errors.ErrUsage, "negative timeout not permitted")
	}
	return d, nil
}

func (r *root) init(cmd *cobra.Command, _ []string) error {
	r.log.SetOutput(cmd.ErrOrStderr())
	r.log.SetDebug(r.debug)
	r.fmt.SetOut(cmd.OutOrStdout())
	r.input.SetStdin(cmd.InOrStdin())

	r.log.Debug("Debug mode enabled")

	if err := r.conf.Read(r.resolveHome(r.confFile), r.log); err != nil {
		return err
	}
	if r.requestTimeout == "" {
		r.requestTimeout = r.conf.RequestTimeout
	}
	if r.connectTimeout == "" {
		r.connectTimeout = r.conf.ConnectTimeout
	}

	var err error
	r.parsedRequestTimeout, err = parseDuration(r.requestTimeout)
	if err != nil {
		return err
	}
	r.parsedConnectTimeout, err = parseDuration(r.connectTimeout)
	if err != nil {
		return err
	}
	r.retryDelayParsed, err = parseDuration(r.retryDelay)
	if err != nil {
		return err
	}
	r.retryTimeoutParsed, err = parseDuration(r.retryTimeout)
	if err != nil {
		return err
	}
	if r.concurrency < 1 {
		return errors.Codef(errors.ErrUsage, "invalid concurrency: %d", r.concurrency)
	}

	r.setTrace()
	cmd.SilenceUsage = true

	return nil
}

// target resolves the single optional location argument of a command.
func (r *root) target(args []string) (*config.Target, error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	return r.conf.Target(arg)
}

func (r *root) client(t *config.Target) (*cloudant.Client, error) {
	hc := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: r.parsedConnectTimeout,
			}).DialContext,
		},
		Timeout: r.parsedRequestTimeout,
	}
	opts := []cloudant.Option{
		cloudant.OptionHTTPClient(hc),
		cloudant.OptionMaxConcurrency(r.concurrency),
		chttp.OptionUserAgent("cloudant-cli/" + chttp.Version),
	}
	if r.rateLimitRetries > 0 {
		opts = append(opts, chttp.RateLimitRetry(r.rateLimitRetries, 250*time.Millisecond, 10*time.Second)) // nolint:gomnd
	}
	client, err := cloudant.New(t.DSN, opts...)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrUsage)
	}
	return client, nil
}

// do runs op on client, retrying transient failures as configured.
func (r *root) do(ctx context.Context, client *cloudant.Client, op cloudant.Operation) error {
	return r.retry(func() error {
		return client.Do(ctx, op)
	})
}

// transient reports whether err may succeed if retried.
func transient(err error) bool {
	switch status := cloudant.HTTPStatus(err); {
	case status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return true
	}
	return false
}

func (r *root) retry(fn func() error) error {
	if r.retryCount == 0 {
		return fn()
	}
	var bo backoff.BackOff
	switch {
	case r.retryDelayParsed == 0 && r.retryDelay != "": // Disables retry delay
		bo = &backoff.ZeroBackOff{}
	case r.retryDelayParsed != 0:
		bo = backoff.NewConstantBackOff(r.retryDelayParsed)
	default:
		bo = backoff.NewExponentialBackOff()
	}
	if r.retryCount >= 0 {
		bo = backoff.WithMaxRetries(bo, uint64(r.retryCount))
	}
	if r.retryTimeoutParsed > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.retryTimeoutParsed)
		defer cancel()
		bo = backoff.WithContext(bo, ctx)
	}
	var count int
	var err error
	return backoff.RetryNotify(func() error {
		count++
		err = fn()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, next time.Duration) {
		msg := fmt.Sprintf("Transient problem: %s. Will retry in %s.", err, fmtDuration(next))
		if remain := r.retryCount - count; r.retryCount > 0 && remain > 0 {
			msg += fmt.Sprintf(" %d retries left.", remain)
		}
		r.log.Warn(msg)
	})
}

// nolint:gomnd
func fmtDuration(dur time.Duration) string {
	s := dur.Seconds()
	if s < 60 {
		return fmt.Sprintf("%0.2fs", s)
	}
	m := int(s / 60)
	s -= float64(m) * 60
	if m < 60 {
		return fmt.Sprintf("%dm%ds", m, int(s))
	}
	h := m / 60
	m -= h * 60
	if h < 24 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	d := h / 24
	h -= d * 24
	return fmt.Sprintf("%dd%dh%dm", d, h, m)
}
