package redis

import "fmt"

const (
	// KeyPrefixMood is the prefix for mood entry keys
	KeyPrefixMood = "emoradar:mood:"
	// KeyAllMoods is the sorted set of entry ids scored by unix millis
	KeyAllMoods = "emoradar:moods:all"
)

// MoodKey returns the Redis key for a mood entry
func MoodKey(id string) string {
	return KeyPrefixMood + id
}

// AllMoodsKey returns the key of the entry index
func AllMoodsKey() string {
	return KeyAllMoods
}

// ExtractMoodID extracts the entry id from a Redis key
func ExtractMoodID(key string) (string, error) {
	if len(key) <= len(KeyPrefixMood) || key[:len(KeyPrefixMood)] != KeyPrefixMood {
		return "", fmt.Errorf("invalid mood key: %s", key)
	}
	return key[len(KeyPrefixMood):], nil
}
