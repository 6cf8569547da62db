package naming

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want NameParts
	}{
		{"size suffix", "promo-200", NameParts{"promo", "-200"}},
		{"variant only", "logo@2x", NameParts{"logo", "@2x"}},
		{"hyphenated head", "bg-desktop-4k", NameParts{"bg-desktop", "-4k"}},
		{"first dash-digit wins", "a-1-2", NameParts{"a", "-1-2"}},
		{"suffix and variant", "promo-200@2x", NameParts{"promo", "-200@2x"}},
		{"digits after at are ignored", "icon@2x-300", NameParts{"icon", "@2x-300"}},
		{"no suffix", "header", NameParts{"header", ""}},
		{"trailing dash", "header-", NameParts{"header-", ""}},
		{"dash letter", "header-big", NameParts{"header-big", ""}},
		{"leading suffix", "-200", NameParts{"", "-200"}},
		{"only variant", "@2x", NameParts{"", "@2x"}},
		{"empty", "", NameParts{"", ""}},
		{"second at kept in variant", "a@b@c", NameParts{"a", "@b@c"}},
		{"newline disables split", "a-1\nb", NameParts{"a-1\nb", ""}},
		{"newline in variant only", "a-1@x\ny", NameParts{"a", "-1@x\ny"}},
		{"non-ascii digit", "a-٣", NameParts{"a-٣", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitName(tt.in))
		})
	}
}

func TestSplitName_Recomposes(t *testing.T) {
	for _, in := range []string{"promo-200", "logo@2x", "bg-desktop-4k@3x", "x", "-1", "a@b-2"} {
		p := SplitName(in)
		assert.Equal(t, in, p.Head+p.Tail, "head+tail must reproduce %q", in)
	}
}

func TestTopGroup(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"banners/promo-200.png", "banners"},
		{"hero/sub/deep/bg.jpg", "hero"},
		{"root.png", "."},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, TopGroup(tt.rel))
		})
	}
}

func TestPlanSource(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"banners/promo-200.png", "promo/promo-banners-200.png"},
		{"icons/logo@2x.png", "logo/logo-icons@2x.png"},
		{"hero/bg-desktop-4k.jpg", "bg-desktop/bg-desktop-hero-4k.jpg"},
		{"icons/sub/arrow-16.png", "arrow/arrow-icons-16.png"},
		{"icons/plain.jpeg", "plain/plain-icons.jpeg"},
		{"hero/photo.JPG", "photo/photo-hero.JPG"},
		{"top-1.png", "top/top-.-1.png"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanSource(tt.rel).Rel())
		})
	}
}

func TestPlan_EmptyHead(t *testing.T) {
	out := Plan("banners/-200.png", "banners")
	assert.Equal(t, "", out.Dir)
	assert.Equal(t, "-banners-200", out.Base)
	assert.Equal(t, "-banners-200.png", out.Rel())
}

func TestPlan_PreservesExtension(t *testing.T) {
	for _, rel := range []string{"g/a-1.png", "g/a-1.jpg", "g/a-1.jpeg", "g/a.tar.png"} {
		out := PlanSource(rel)
		assert.Equal(t, rel[len(rel)-len(out.Ext):], out.Ext)
	}
}

func TestPlan_NotIdempotent(t *testing.T) {
	first := PlanSource("banners/promo-200.png")
	second := PlanSource(first.Rel())
	assert.NotEqual(t, first.Rel(), second.Rel())
	assert.Equal(t, "promo-banners/promo-banners-promo-200.png", second.Rel())
}

func TestCollisionResolver_FirstClaimWins(t *testing.T) {
	cr := NewCollisionResolver()

	owner, ok := cr.Claim("a/logo@2x.png", "logo/logo-a@2x.png")
	require.True(t, ok)
	assert.Equal(t, "a/logo@2x.png", owner)

	// Same source claiming again is not a collision.
	_, ok = cr.Claim("a/logo@2x.png", "logo/logo-a@2x.png")
	assert.True(t, ok)

	owner, ok = cr.Claim("a/sub/logo@2x.png", "logo/logo-a@2x.png")
	assert.False(t, ok)
	assert.Equal(t, "a/logo@2x.png", owner)

	assert.Equal(t, 1, cr.Len())
}

func TestCollisionResolver_Concurrent(t *testing.T) {
	cr := NewCollisionResolver()
	var wg sync.WaitGroup
	wins := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := cr.Claim(fmt.Sprintf("src-%d", i), "same/out.png"); ok {
				wins <- fmt.Sprintf("src-%d", i)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	assert.Len(t, winners, 1)
}
