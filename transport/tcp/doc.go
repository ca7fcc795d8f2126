// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp establishes stream channels: Connector for the client side,
// Listener for the server side. Both hand out transport.Transport values
// on fresh reference-counted handles. Connection attempts are made once;
// retry policy belongs to the caller.
package tcp
