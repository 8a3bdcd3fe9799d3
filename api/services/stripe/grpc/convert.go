package grpcserver

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tbeaudouin05/fanvault/api/services/stripe/app"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Request fields arrive either as JSON values or, from query strings and path
// parameters, as strings. The readers below accept both.

func stringField(in *structpb.Struct, key string) string {
	v, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return strings.TrimSpace(k.StringValue)
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}

func firstString(in *structpb.Struct, keys ...string) string {
	for _, k := range keys {
		if v := stringField(in, k); v != "" {
			return v
		}
	}
	return ""
}

func boolValue(v *structpb.Value) bool {
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_StringValue:
		b, _ := strconv.ParseBool(k.StringValue)
		return b
	}
	return false
}

func boolField(in *structpb.Struct, key string) bool {
	v, ok := in.GetFields()[key]
	return ok && boolValue(v)
}

func intField(in *structpb.Struct, key string) (int64, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue != math.Trunc(k.NumberValue) || math.Abs(k.NumberValue) > math.MaxInt64/2 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int64(k.NumberValue), nil
	case *structpb.Value_StringValue:
		if k.StringValue == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	}
	return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

func timeValue(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func stringValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func checkoutStruct(res app.CheckoutResult) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"sessionId": res.SessionID,
		"url":       res.URL,
		"feeSplit":  res.FeeSplit,
	})
}

func connectValue(st app.ConnectStatus) map[string]any {
	return map[string]any{
		"accountId":      st.AccountID,
		"chargesEnabled": st.ChargesEnabled,
		"checkedAt":      timeValue(st.CheckedAt),
	}
}

func planValue(p stripedb.Plan) map[string]any {
	return map[string]any{
		"planKey":              p.Key,
		"intervalUnit":         p.IntervalUnit,
		"intervalCount":        p.IntervalCount,
		"amount":               p.Amount,
		"currency":             p.Currency,
		"priceId":              p.StripePriceID,
		"introDiscountPercent": p.IntroDiscountPercent,
		"couponId":             stringValue(p.StripeCouponID),
	}
}

func subscriptionValue(s stripedb.Subscription) map[string]any {
	return map[string]any{
		"id":                   s.ID,
		"creatorId":            s.CreatorID,
		"status":               string(s.Status),
		"paid":                 s.Paid(),
		"stripeSubscriptionId": stringValue(s.StripeSubscriptionID),
		"currentPeriodEnd":     timeValue(s.CurrentPeriodEnd),
		"cancelAtPeriodEnd":    s.CancelAtPeriodEnd,
		"cancelAt":             timeValue(s.CancelAt),
	}
}

// purchaseValue leaves out the provider payment reference.
func purchaseValue(p stripedb.Purchase) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"postId":      p.PostID,
		"creatorId":   p.CreatorID,
		"status":      string(p.Status),
		"amount":      p.Amount,
		"currency":    p.Currency,
		"platformFee": p.PlatformFee,
		"creatorNet":  p.CreatorNet,
		"createdAt":   timeValue(&p.CreatedAt),
	}
}
