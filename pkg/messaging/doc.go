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

// Package messaging provides the messaging interfaces designed from the application's perspective.
//
// The anycast protocol only needs fire and forget delivery that is ordered per sender: each node subscribes to its
// own topic, and envelopes addressed to a node are published to that topic. The nats sub package provides the
// NATS implementation.
package messaging
