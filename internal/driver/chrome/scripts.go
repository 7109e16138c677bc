package chrome

// serializeDocumentJS walks the document and emits its markup, inlining open
// shadow roots between <!--shadow-root--> markers.
const serializeDocumentJS = `(() => {
  const voidTags = new Set(['area','base','br','col','embed','hr','img','input','link','meta','source','track','wbr']);
  const escapeText = (s) => s.replace(/&/g, '&amp;').replace(/</g, '&lt;').replace(/>/g, '&gt;');
  const escapeAttr = (s) => s.replace(/&/g, '&amp;').replace(/"/g, '&quot;');
  const walk = (node) => {
    switch (node.nodeType) {
      case Node.TEXT_NODE: {
        const parent = node.parentNode && node.parentNode.localName;
        return parent === 'script' || parent === 'style' ? node.textContent : escapeText(node.textContent);
      }
      case Node.COMMENT_NODE:
        return '<!--' + node.textContent + '-->';
      case Node.DOCUMENT_FRAGMENT_NODE: {
        let out = '';
        for (const child of node.childNodes) out += walk(child);
        return out;
      }
      case Node.ELEMENT_NODE:
        break;
      default:
        return '';
    }
    const tag = node.localName;
    let out = '<' + tag;
    for (const attr of node.attributes) out += ' ' + attr.name + '="' + escapeAttr(attr.value) + '"';
    out += '>';
    if (voidTags.has(tag)) return out;
    if (node.shadowRoot) out += '<!--shadow-root-->' + walk(node.shadowRoot) + '<!--/shadow-root-->';
    const children = tag === 'template' ? node.content.childNodes : node.childNodes;
    for (const child of children) out += walk(child);
    return out + '</' + tag + '>';
  };
  return '<!DOCTYPE html>' + walk(document.documentElement);
})()`
