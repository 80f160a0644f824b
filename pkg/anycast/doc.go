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

/*
Package anycast implements the anycast tick-stream protocol, which is used by one node to retrieve or browse messages
that are held by a remote node's message store.

The requester side is the InputStream. Each request is correlated by a tick, which is allocated in strictly
increasing order per stream. A tick is held either as a RequestRecord, while the request is outstanding, or as a
ValueRecord, once the remote node has resolved it to a message, but never both.

The responder side is the OutputStream. It resolves requests against the local msgstore.Store, reserving messages
for the requester until the requester acknowledges delivery. Every responder carries an epoch, which changes when
the node restarts. Requests acknowledged by a different epoch are answered with ReissueRequired, which forces the
requester to reissue the request against the current epoch.

Protocol messages travel inside an Envelope through a Transport. The RequestHandler sends requester traffic with
bounded retries, the ResponseHandler routes replies to input streams, and the OutputHandler drives output streams.
*/
package anycast
