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

// Package config reads the CLI configuration file and environment.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	clierrors "github.com/go-kivik/cloudant/cmd/cloudant/errors"
	"github.com/go-kivik/cloudant/cmd/cloudant/log"
)

const envPrefix = "CLOUDANT"

// Config is the full app configuration.
type Config struct {
	Contexts       map[string]*Context `mapstructure:"contexts"`
	CurrentContext string              `mapstructure:"current-context"`

	// RequestTimeout and ConnectTimeout are defaults for the matching
	// flags, in the same format.
	RequestTimeout string `mapstructure:"request-timeout"`
	ConnectTimeout string `mapstructure:"connect-timeout"`

	log log.Logger
}

// Context is a named server, with an optional default database.
type Context struct {
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"`
}

// Target is the resolved location a command acts on.
type Target struct {
	// DSN is the server URL, including any credentials.
	DSN   string
	DB    string
	DocID string
}

// New returns an empty configuration. Call Read to populate it.
func New() *Config {
	return &Config{
		Contexts: make(map[string]*Context),
	}
}

// Read populates c from the YAML file filename, and from the environment.
// A missing file is not an error. CLOUDANT_DSN, if set, becomes the
// current context.
func (c *Config) Read(filename string, lg log.Logger) error {
	c.log = lg
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				lg.Debugf("failed to read config: %s", err)
				return clierrors.WithCode(err, clierrors.ErrUsage)
			}
			lg.Debugf("config file %q not found", filename)
		} else {
			lg.Debugf("successfully read config file %q", filename)
		}
	}
	if err := v.Unmarshal(c); err != nil {
		return clierrors.WithCode(err, clierrors.ErrUsage)
	}
	if c.Contexts == nil {
		c.Contexts = make(map[string]*Context)
	}
	// Explicit lookups, as AutomaticEnv only applies to keys read with Get.
	c.RequestTimeout = v.GetString("request-timeout")
	c.ConnectTimeout = v.GetString("connect-timeout")
	if dsn := v.GetString("dsn"); dsn != "" {
		c.Contexts["*"] = &Context{DSN: dsn, Database: v.GetString("database")}
		c.CurrentContext = "*"
		lg.Debug("set default DSN from environment")
	}
	return nil
}

// CurrentCx returns the current context.
func (c *Config) CurrentCx() (*Context, error) {
	if c.CurrentContext == "" {
		if len(c.Contexts) == 1 {
			for _, cx := range c.Contexts {
				return cx, nil
			}
		}
		return nil, clierrors.Code(clierrors.ErrUsage, "no context specified")
	}
	cx, ok := c.Contexts[c.CurrentContext]
	if !ok {
		return nil, clierrors.Codef(clierrors.ErrUsage, "context %q not found", c.CurrentContext)
	}
	return cx, nil
}

// Target resolves a command line location. Supported forms:
//
//   - Full URL     -- http://localhost:5984/database/docid
//   - Path only    -- database/docid, relative to the current context
//   - Doc ID only  -- docid, in the current context's database
//
// Design document IDs keep their _design/ prefix.
func (c *Config) Target(arg string) (*Target, error) {
	if strings.Contains(arg, "://") {
		u, err := url.Parse(arg)
		if err != nil {
			return nil, clierrors.WithCode(err, clierrors.ErrUsage)
		}
		p := u.Path
		u.Path, u.RawPath, u.RawQuery = "", "", ""
		t := &Target{DSN: u.String()}
		t.DB, t.DocID = splitPath(p)
		return t, nil
	}
	cx, err := c.CurrentCx()
	if err != nil {
		return nil, err
	}
	if cx.DSN == "" {
		return nil, clierrors.Code(clierrors.ErrUsage, "server URL required")
	}
	t := &Target{DSN: cx.DSN}
	db, doc := splitPath(arg)
	switch {
	case cx.Database != "" && doc == "" && db != "" && !strings.Contains(arg, "/"):
		// A lone name is a document of the context database.
		t.DB, t.DocID = cx.Database, db
	case db == "":
		t.DB = cx.Database
	default:
		t.DB, t.DocID = db, doc
	}
	c.log.Debugf("resolved %q to %s database %q document %q", arg, redact(t.DSN), t.DB, t.DocID)
	return t, nil
}

func splitPath(p string) (db, doc string) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2) // nolint:gomnd
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	return u.Redacted()
}
