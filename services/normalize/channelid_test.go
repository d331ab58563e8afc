package normalize

import "testing"

func TestSafeChannelID(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already safe", "news.one", "news.one"},
		{"uppercase lowered", "News.ONE", "news.one"},
		{"url escapes decoded", "News%20One", "newsone"},
		{"spaces stripped", "News One HD", "newsonehd"},
		{"accents folded", "Téléfoot Café", "telefootcafe"},
		{"punctuation stripped", "bbc|one (uk)!", "bbconeuk"},
		{"dots dashes underscores kept", "bbc-one_hd.uk", "bbc-one_hd.uk"},
		{"empty", "", ""},
		{"only junk", "???###", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SafeChannelID(tc.in); got != tc.want {
				t.Errorf("SafeChannelID(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSafeChannelID_Idempotent(t *testing.T) {
	inputs := []string{"News%20One", "Téléfoot", "bbc-one_hd.uk", "A B C"}
	for _, in := range inputs {
		once := SafeChannelID(in)
		if twice := SafeChannelID(once); twice != once {
			t.Errorf("SafeChannelID not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
