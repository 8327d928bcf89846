/*
Package renderer implements the script side of the bridge.

# Overview

The renderer process runs one App per channel. App routes host messages by
browser id to a Browser, and each Browser owns exactly one live Context: a
goja runtime together with its object registry and pending callback table.
Navigations and reloads destroy the Context and build a fresh one; handles
are never carried over.

# Dispatch

Host records are decoded at the channel boundary and switched on their
concrete type:

  - create-global-object / create-function: build objects and native
    functions in the runtime and register them by identifier
  - invoke / invoke-with-result: call a method on a registered object
  - callback-reply: run and remove a pending callback
  - execute-javascript, object-set-attr, object-get-attr, input-event,
    load-url, reload

Calls made by page script into host-installed functions leave as
method-call records. When the function was created with a callback flag the
trailing function argument is kept in the callback table and only its id
crosses the wire.

# Failure model

Nothing here propagates as a hard error. Missing identifiers, script
exceptions and arguments without a wire form degrade to a false return and
a warning record for the host.
*/
package renderer
