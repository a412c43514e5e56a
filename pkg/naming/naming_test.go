package naming

import "testing"

func TestFileName(t *testing.T) {
	ep := Episode{Title: "Shingeki no Kyojin: Final Season!", Season: 4, Number: 7, Original: "AttackOnTitan_Ep_07_SUB_ITA.mp4"}
	tc := []struct {
		name    string
		pattern Pattern
		custom  string
		ep      Episode
		want    string
	}{
		{"original", Original, "", ep, "AttackOnTitan_Ep_07_SUB_ITA.mp4"},
		{"original without name", Original, "", Episode{Title: "One Piece", Number: 1000}, "One Piece - 1000.mp4"},
		{"original with path", Original, "", Episode{Title: "x", Number: 1, Original: "../../etc/passwd"}, "passwd"},
		{"season episode", SeasonEpisode, "", ep, "Shingeki no Kyojin Final Season - S04E07.mp4"},
		{"season defaults to 1", SeasonEpisode, "", Episode{Title: "Naruto", Number: 3, Ext: ".mkv"}, "Naruto - S01E03.mkv"},
		{"custom", Custom, "{anime_name} {season}x{episode:03d}.{ext}", ep, "Shingeki no Kyojin Final Season 4x007.mp4"},
		{"custom unknown key", Custom, "{anime_name} {quality}.{ext}", ep, "Shingeki no Kyojin Final Season - 07.mp4"},
		{"custom empty", Custom, "", ep, "Shingeki no Kyojin Final Season - 07.mp4"},
		{"diacritics", SeasonEpisode, "", Episode{Title: "Pokémon Évolutions", Number: 1}, "Pokemon Evolutions - S01E01.mp4"},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			got := New(c.pattern, c.custom).FileName(c.ep)
			if got != c.want {
				t.Errorf("Expecting %q, got %q", c.want, got)
			}
		})
	}
}

func TestParsePattern(t *testing.T) {
	for s, want := range map[string]Pattern{"": Original, "Season_Episode": SeasonEpisode, "custom": Custom} {
		got, err := ParsePattern(s)
		if err != nil || got != want {
			t.Errorf("%q: expecting %q, got %q, %v", s, want, got, err)
		}
	}
	if _, err := ParsePattern("plex"); err == nil {
		t.Errorf("Expecting an error")
	}
}
