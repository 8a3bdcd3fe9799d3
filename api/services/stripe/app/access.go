package app

import (
	"context"

	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

// CheckAccess loads the post and resolves the viewer's access to it. It never
// returns an error: lookup failures become a deny with reason error.
func (s serviceImpl) CheckAccess(ctx context.Context, viewerID, postID string) AccessDecision {
	if postID == "" {
		return s.decide(false, AccessReasonInvalid)
	}
	post, ok, err := s.store.GetPost(ctx, postID)
	if err != nil {
		s.log.Error("failed to load post for access check", "post_id", postID, "err", err)
		return s.decide(false, AccessReasonError)
	}
	if !ok {
		return s.decide(false, AccessReasonNotFound)
	}
	return s.ResolveAccess(ctx, viewerID, post)
}

// ResolveAccess evaluates, in order: public post, anonymous viewer, owner,
// entitling paid subscription, succeeded purchase. It only reads, with at most
// two point lookups.
func (s serviceImpl) ResolveAccess(ctx context.Context, viewerID string, post stripedb.Post) AccessDecision {
	if !post.Exclusive {
		return s.decide(true, AccessReasonPublic)
	}
	if viewerID == "" {
		return s.decide(false, AccessReasonNoAuth)
	}
	if viewerID == post.CreatorID {
		return s.decide(true, AccessReasonOwner)
	}

	sub, ok, err := s.store.GetSubscription(ctx, viewerID, post.CreatorID)
	if err != nil {
		s.log.Error("failed to load subscription for access check", "viewer_id", viewerID, "creator_id", post.CreatorID, "err", err)
		return s.decide(false, AccessReasonError)
	}
	// a free relation (no provider reference) never unlocks exclusive content
	if ok && sub.Paid() && sub.Status.Entitling() {
		return s.decide(true, AccessReasonSubscription)
	}

	purchase, ok, err := s.store.GetPurchase(ctx, viewerID, post.ID)
	if err != nil {
		s.log.Error("failed to load purchase for access check", "viewer_id", viewerID, "post_id", post.ID, "err", err)
		return s.decide(false, AccessReasonError)
	}
	if ok && purchase.Status == stripedb.PurchaseStatusSucceeded {
		return s.decide(true, AccessReasonPPV)
	}
	return s.decide(false, AccessReasonLocked)
}

func (s serviceImpl) decide(access bool, reason AccessReason) AccessDecision {
	s.metrics.IncAccessDecision(string(reason))
	return AccessDecision{Access: access, Reason: reason}
}
