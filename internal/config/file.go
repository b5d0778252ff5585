package config

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with pointer fields so that keys absent from
// the file leave the lower layer untouched.
type fileConfig struct {
	Root      *string         `json:"root" yaml:"root"`
	Base      *string         `json:"base" yaml:"base"`
	PublicDir *string         `json:"publicDir" yaml:"publicDir"`
	EnvPrefix *string         `json:"envPrefix" yaml:"envPrefix"`
	Plugins   *[]PluginConfig `json:"plugins" yaml:"plugins"`
	Server    *fileServer     `json:"server" yaml:"server"`
	Build     *fileBuild      `json:"build" yaml:"build"`
	Preview   *filePreview    `json:"preview" yaml:"preview"`
	Publish   *filePublish    `json:"publish" yaml:"publish"`
}

type fileServer struct {
	Host       *Host                     `json:"host" yaml:"host"`
	Port       *int                      `json:"port" yaml:"port"`
	StrictPort *bool                     `json:"strictPort" yaml:"strictPort"`
	CORS       *bool                     `json:"cors" yaml:"cors"`
	Open       *bool                     `json:"open" yaml:"open"`
	HMR        *bool                     `json:"hmr" yaml:"hmr"`
	Watch      *fileWatch                `json:"watch" yaml:"watch"`
	Proxy      *map[string]fileProxyRule `json:"proxy" yaml:"proxy"`
}

type fileWatch struct {
	UsePolling *bool     `json:"usePolling" yaml:"usePolling"`
	Interval   *int      `json:"interval" yaml:"interval"`
	Ignored    *[]string `json:"ignored" yaml:"ignored"`
}

type fileBuild struct {
	OutDir      *string   `json:"outDir" yaml:"outDir"`
	AssetsDir   *string   `json:"assetsDir" yaml:"assetsDir"`
	Sourcemap   *bool     `json:"sourcemap" yaml:"sourcemap"`
	Minify      *Minifier `json:"minify" yaml:"minify"`
	Target      *string   `json:"target" yaml:"target"`
	EmptyOutDir *bool     `json:"emptyOutDir" yaml:"emptyOutDir"`
	Manifest    *bool     `json:"manifest" yaml:"manifest"`
}

type filePreview struct {
	Host       *Host                     `json:"host" yaml:"host"`
	Port       *int                      `json:"port" yaml:"port"`
	StrictPort *bool                     `json:"strictPort" yaml:"strictPort"`
	Proxy      *map[string]fileProxyRule `json:"proxy" yaml:"proxy"`
}

type filePublish struct {
	Bucket    *string `json:"bucket" yaml:"bucket"`
	Prefix    *string `json:"prefix" yaml:"prefix"`
	Region    *string `json:"region" yaml:"region"`
	Endpoint  *string `json:"endpoint" yaml:"endpoint"`
	PathStyle *bool   `json:"pathStyle" yaml:"pathStyle"`
}

// fileProxyRule accepts either a bare target string or a rule object.
// The object form also takes secure: false as a synonym for
// insecureSkipVerify: true.
type fileProxyRule struct {
	Target             string        `json:"target" yaml:"target"`
	ChangeOrigin       bool          `json:"changeOrigin" yaml:"changeOrigin"`
	Secure             *bool         `json:"secure" yaml:"secure"`
	InsecureSkipVerify *bool         `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
	Rewrite            []RewriteRule `json:"rewrite" yaml:"rewrite"`
}

type fileProxyRuleObject fileProxyRule

func (r *fileProxyRule) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '"' {
		*r = fileProxyRule{}
		return json.Unmarshal(trimmed, &r.Target)
	}
	var obj fileProxyRuleObject
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&obj); err != nil {
		return err
	}
	*r = fileProxyRule(obj)
	return nil
}

func (r *fileProxyRule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = fileProxyRule{}
		return node.Decode(&r.Target)
	}
	var obj fileProxyRuleObject
	if err := node.Decode(&obj); err != nil {
		return err
	}
	*r = fileProxyRule(obj)
	return nil
}

func (r fileProxyRule) rule() ProxyRule {
	out := ProxyRule{
		Target:       r.Target,
		ChangeOrigin: r.ChangeOrigin,
		Rewrite:      r.Rewrite,
	}
	if r.Secure != nil {
		out.InsecureSkipVerify = !*r.Secure
	}
	if r.InsecureSkipVerify != nil {
		out.InsecureSkipVerify = *r.InsecureSkipVerify
	}
	return out
}

func proxyRules(m map[string]fileProxyRule) map[string]ProxyRule {
	out := make(map[string]ProxyRule, len(m))
	for k, r := range m {
		out[k] = r.rule()
	}
	return out
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.Root, fc.Root)
	setString(&cfg.Base, fc.Base)
	setString(&cfg.PublicDir, fc.PublicDir)
	setString(&cfg.EnvPrefix, fc.EnvPrefix)
	if fc.Plugins != nil {
		cfg.Plugins = append([]PluginConfig{}, (*fc.Plugins)...)
	}

	if s := fc.Server; s != nil {
		if s.Host != nil {
			cfg.Server.Host = *s.Host
		}
		setInt(&cfg.Server.Port, s.Port)
		setBool(&cfg.Server.StrictPort, s.StrictPort)
		setBool(&cfg.Server.CORS, s.CORS)
		setBool(&cfg.Server.Open, s.Open)
		setBool(&cfg.Server.HMR, s.HMR)
		if w := s.Watch; w != nil {
			setBool(&cfg.Server.Watch.UsePolling, w.UsePolling)
			setInt(&cfg.Server.Watch.Interval, w.Interval)
			if w.Ignored != nil {
				cfg.Server.Watch.Ignored = append([]string{}, (*w.Ignored)...)
			}
		}
		if s.Proxy != nil {
			cfg.Server.Proxy = proxyRules(*s.Proxy)
		}
	}

	if b := fc.Build; b != nil {
		setString(&cfg.Build.OutDir, b.OutDir)
		setString(&cfg.Build.AssetsDir, b.AssetsDir)
		setBool(&cfg.Build.Sourcemap, b.Sourcemap)
		if b.Minify != nil {
			cfg.Build.Minify = *b.Minify
		}
		setString(&cfg.Build.Target, b.Target)
		setBool(&cfg.Build.EmptyOutDir, b.EmptyOutDir)
		setBool(&cfg.Build.Manifest, b.Manifest)
	}

	if p := fc.Preview; p != nil {
		if p.Host != nil {
			cfg.Preview.Host = *p.Host
		}
		setInt(&cfg.Preview.Port, p.Port)
		setBool(&cfg.Preview.StrictPort, p.StrictPort)
		if p.Proxy != nil {
			cfg.Preview.Proxy = proxyRules(*p.Proxy)
		}
	}

	if p := fc.Publish; p != nil {
		setString(&cfg.Publish.Bucket, p.Bucket)
		setString(&cfg.Publish.Prefix, p.Prefix)
		setString(&cfg.Publish.Region, p.Region)
		setString(&cfg.Publish.Endpoint, p.Endpoint)
		setBool(&cfg.Publish.PathStyle, p.PathStyle)
	}
}
