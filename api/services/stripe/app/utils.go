package app

import "time"

// lenientMetadata keeps only the pair when the rest of the metadata is unusable.
func lenientMetadata(md map[string]string) CheckoutMetadata {
	m, err := ParseCheckoutMetadata(md)
	if err != nil {
		return CheckoutMetadata{BuyerID: md[metaBuyerID], CreatorID: md[metaCreatorID]}
	}
	return m
}

// unixTime converts a provider timestamp; zero means unset.
func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
