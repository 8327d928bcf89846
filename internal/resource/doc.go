/*
Package resource loads pages for the renderer.

Pages are addressed by url. The local: scheme is relative to a configured
resource root and cannot escape it; file:// urls are absolute paths. A url
naming a directory resolves to its index.html.

HTML pages are scanned with goquery for script elements (inline and src).
TypeScript sources are transformed with esbuild before they reach the
engine. Content type comes from the file extension for scripts and from
mimetype sniffing for everything else.
*/
package resource
