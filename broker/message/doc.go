/*
Package message provides the types exchanged with the catalog over the
message broker.

Commands (class Command) ask the catalog to run one lifecycle operation on a
dataset. Events (class Event) announce committed changes. Every message is a
JSON object with two members, messageHeader and messageBody, where the type
of the body is chosen after the messageType header.

Bump Version when the shape of a header or body changes in a way that
consumers must know about.
*/
package message
