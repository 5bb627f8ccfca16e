package auth

import "testing"

func TestHashPasswordDeterministic(t *testing.T) {
	h1 := HashPassword("hunter22", "alice")
	h2 := HashPassword("hunter22", "alice")
	if h1 != h2 {
		t.Fatal("same password and username must hash identically")
	}
	if h1 == "" {
		t.Fatal("hash must not be empty")
	}
}

func TestHashPasswordUsernameSalts(t *testing.T) {
	// Same password, different usernames: different hashes
	if HashPassword("hunter22", "alice") == HashPassword("hunter22", "bob") {
		t.Fatal("username salt must differentiate hashes")
	}
}

func TestVerifyPassword(t *testing.T) {
	stored := HashPassword("hunter22", "alice")

	if !VerifyPassword("hunter22", "alice", stored) {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword("wrong", "alice", stored) {
		t.Fatal("wrong password accepted")
	}
	if VerifyPassword("hunter22", "bob", stored) {
		t.Fatal("wrong username accepted")
	}
	if VerifyPassword("hunter22", "alice", "not-a-hash") {
		t.Fatal("garbage stored hash accepted")
	}
}

func TestValidatePasswordFormat(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"short", true},
		{"exactly8", false},
		{"a perfectly fine passphrase", false},
		{string(make([]byte, 129)), true},
	}
	for _, tt := range tests {
		err := ValidatePasswordFormat(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePasswordFormat(%q): err=%v, wantErr=%v", tt.password, err, tt.wantErr)
		}
	}
}

func TestValidateUsernameFormat(t *testing.T) {
	tests := []struct {
		username string
		wantErr  bool
	}{
		{"ab", true},
		{"bob", false},
		{"twenty_chars_exactly", false},
		{"this_username_is_far_too_long", true},
	}
	for _, tt := range tests {
		err := ValidateUsernameFormat(tt.username)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateUsernameFormat(%q): err=%v, wantErr=%v", tt.username, err, tt.wantErr)
		}
	}
}
