// Copyright (C) 2025 ringnet-io
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Encode serializes a Message to the JSON bytes sent over the transport.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode message: %w", err)
	}
	return data, nil
}

// Decode parses a Message off the wire.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("wire: decode message: %w", err)
	}
	return &msg, nil
}

// NewObjectMessage builds a Message whose body is a plain JSON object, the
// shape HELO and TRUSTED bodies take.
func NewObjectMessage(typ Type, body interface{}) (*Message, error) {
	plain, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal body: %w", err)
	}
	return &Message{
		Header: NewHeader(typ, plain),
		Body:   plain,
	}, nil
}

// NewCipherMessage builds a Message whose body is base64-encoded ciphertext,
// the shape MESSAGE and CONFIRM bodies take once the data channel is
// encrypted.
func NewCipherMessage(typ Type, ciphertext []byte) (*Message, error) {
	encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("wire: marshal ciphertext body: %w", err)
	}
	// The hash is computed over the same plaintext ciphertext bytes the
	// recipient will decode back out of the base64 string, not over the
	// base64 text itself, so both sides agree regardless of base64 variant.
	ts := Now()
	return &Message{
		Header: Header{
			Type:      typ,
			Hash:      Hash(typ, ciphertext, ts),
			Timestamp: ts,
		},
		Body: encoded,
	}, nil
}

// DecodeCipherBody extracts the raw ciphertext bytes from a MESSAGE/CONFIRM
// body produced by NewCipherMessage.
func DecodeCipherBody(body json.RawMessage) ([]byte, error) {
	var encoded string
	if err := json.Unmarshal(body, &encoded); err != nil {
		return nil, fmt.Errorf("wire: body is not a base64 string: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("wire: decode base64 body: %w", err)
	}
	return ciphertext, nil
}

// DecodeObjectBody unmarshals a HELO/TRUSTED body into out.
func DecodeObjectBody(body json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("wire: decode object body: %w", err)
	}
	return nil
}
