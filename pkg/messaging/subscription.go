// Copyright (c) 2017 OysterPack, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package messaging

// Subscription represents a topic subscriber's subscription.
type Subscription interface {
	ID() string

	// Subject that represents this subscription. This can be different
	// than the received subject inside a Msg if this is a wildcard.
	Topic() Topic

	// Delivered returns the number of delivered messages for this subscription.
	Delivered() (int64, error)

	// Dropped returns the number of known dropped messages for this subscription.
	Dropped() (int, error)

	// IsValid returns false if the subscription has already been closed.
	IsValid() bool

	// Unsubscribe removes interest in the topic. Messages already received are still processed.
	Unsubscribe() error

	// SubscriptionInfo collects all info at once and returns it
	SubscriptionInfo() (*SubscriptionInfo, error)
}

// SubscriptionInfo topic subscription info
type SubscriptionInfo struct {
	ID        string
	Topic     Topic
	Delivered int64
	Dropped   int
	Valid     bool
}
