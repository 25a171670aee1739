package imagepipeline

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy bounds what an embedded image may contain. SniffContent rejects
// payloads whose bytes do not match the declared type; it is off by default so
// any data URL that decodes is stored as declared.
type Policy struct {
	AllowedContentTypes []string `mapstructure:"allowedContentTypes"`
	MaxBytes            int64    `mapstructure:"maxBytes"`
	MaxImages           int      `mapstructure:"maxImages"`
	SniffContent        bool     `mapstructure:"sniffContent"`
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedContentTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		MaxBytes:            5 << 20,
		MaxImages:           20,
	}
}

// Allows reports whether contentType is on the allow list. Matching ignores
// case and media type parameters.
func (p Policy) Allows(contentType string) bool {
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	for _, allowed := range p.AllowedContentTypes {
		if strings.EqualFold(strings.TrimSpace(allowed), base) {
			return true
		}
	}
	return false
}

// withDefaults fills fields a partial policy file left unset.
func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.AllowedContentTypes == nil {
		p.AllowedContentTypes = defaults.AllowedContentTypes
	}
	if p.MaxBytes == 0 {
		p.MaxBytes = defaults.MaxBytes
	}
	if p.MaxImages == 0 {
		p.MaxImages = defaults.MaxImages
	}
	return p
}

func (p Policy) validate() error {
	if len(p.AllowedContentTypes) == 0 {
		return errors.New("imagepipeline.allowedContentTypes cannot be empty")
	}
	if p.MaxBytes <= 0 {
		return errors.New("imagepipeline.maxBytes must be positive")
	}
	if p.MaxImages <= 0 {
		return errors.New("imagepipeline.maxImages must be positive")
	}
	return nil
}

type PolicySource interface {
	Get() Policy
}

// PolicyHolder serves the policy read from imagepipeline.yml and swaps it when
// the file changes. Invalid edits are ignored.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

func NewPolicyHolder(configPath string, log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("imagepipeline.policy")

	v := viper.New()
	v.SetConfigName("imagepipeline")
	v.SetConfigType("yml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("/etc/directory")

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var policy Policy
	if err := v.UnmarshalKey("imagepipeline", &policy); err != nil {
		return nil, err
	}
	policy = policy.withDefaults()
	if err := policy.validate(); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated Policy
			if err := v.UnmarshalKey("imagepipeline", &updated); err != nil {
				log.Warn("policy reload failed", zap.Error(err))
				return
			}
			updated = updated.withDefaults()
			if err := updated.validate(); err != nil {
				log.Warn("invalid policy ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("policy reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// StaticPolicy returns a holder pinned to policy.
func StaticPolicy(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}
