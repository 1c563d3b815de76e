// SPDX-License-Identifier: ice License 1.0

package fixture

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

const (
	// TestBotToken matches `self.wintr/auth/telegram.credentials.botToken` in application.yaml.
	TestBotToken = "test-secret" //nolint:gosec // Bogus.
)

// Sign mimics what Telegram does for the login widget: it returns a copy of fields with `hash` set.
func Sign(botToken string, fields map[string]string) map[string]string {
	signed := make(map[string]string, len(fields)+1)
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		signed[k] = v
		if k == "hash" || k == "state" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%v=%v", k, fields[k]))
	}
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	signed["hash"] = hex.EncodeToString(mac.Sum(nil))

	return signed
}

// Login builds a signed payload for the given user id, issued at authDate (unix seconds).
func Login(botToken string, id int64, authDate int64, extra ...string) map[string]string {
	fields := map[string]string{
		"id":        fmt.Sprint(id),
		"auth_date": fmt.Sprint(authDate),
	}
	for ix := 0; ix+1 < len(extra); ix += 2 {
		fields[extra[ix]] = extra[ix+1]
	}

	return Sign(botToken, fields)
}
