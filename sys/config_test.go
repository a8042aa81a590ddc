package sys

import "testing"

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing token", Config{}, true},
		{"token only", Config{Token: "abc"}, false},
		{"valid guild id", Config{Token: "abc", GuildID: "123456789012345678"}, false},
		{"guild id too short", Config{Token: "abc", GuildID: "12345"}, true},
		{"guild id too long", Config{Token: "abc", GuildID: "123456789012345678901"}, true},
	}

	for _, c := range cases {
		err := c.cfg.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestConfigIsOwner(t *testing.T) {
	cfg := Config{OwnerIDs: []string{"111", "222"}}
	if !cfg.IsOwner("222") {
		t.Error("listed ID not recognized as owner")
	}
	if cfg.IsOwner("333") {
		t.Error("unlisted ID recognized as owner")
	}
	empty := Config{}
	if empty.IsOwner("111") {
		t.Error("empty owner list should match nobody")
	}
}
