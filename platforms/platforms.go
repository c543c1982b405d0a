// Package platforms registers the supported social media platforms with the default registry. Import it for its side
// effects.
package platforms

import (
	"github.com/alanbriolat/universal-saver"
)

var (
	TikTok = universal_saver.Platform{
		Name:    "TikTok",
		Domains: []string{"tiktok.com"},
	}
	Instagram = universal_saver.Platform{
		Name:    "Instagram",
		Domains: []string{"instagram.com"},
	}
	Facebook = universal_saver.Platform{
		Name:    "Facebook",
		Domains: []string{"facebook.com", "fb.watch"},
	}
	X = universal_saver.Platform{
		Name:    "X (Twitter)",
		Domains: []string{"twitter.com", "x.com"},
	}
)

// All lists the supported platforms in display order.
var All = []universal_saver.Platform{TikTok, Instagram, Facebook, X}

// Register adds every supported platform to r.
func Register(r *universal_saver.PlatformRegistry) {
	for _, p := range All {
		r.MustAdd(p)
	}
}

func init() {
	Register(&universal_saver.DefaultPlatformRegistry)
}
